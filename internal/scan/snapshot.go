package scan

import (
	"time"

	"github.com/shopspring/decimal"

	"stockscan/internal/detection"
)

// ResultView is a detection result as shown to users.
type ResultView struct {
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Confidence float64 `json:"confidence"`
	// Percent is the confidence rounded to a whole percent, e.g. "92%".
	Percent string `json:"confidence_percent"`
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID           string       `json:"id"`
	State        State        `json:"state"`
	HasImage     bool         `json:"has_image"`
	Image        string       `json:"image,omitempty"`
	Failed       bool         `json:"failed"`
	Results      []ResultView `json:"results"`
	LastActivity time.Time    `json:"last_activity"`
}

// Snapshot copies the session. The image data URL is included only when
// withImage is set since it can be large.
func (s *Session) Snapshot(withImage bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		State:        s.state,
		HasImage:     s.image != "",
		Failed:       s.state == Resolved && s.results == nil,
		Results:      make([]ResultView, 0, len(s.results)),
		LastActivity: s.lastActivity,
	}
	if withImage {
		snap.Image = s.image
	}
	for _, r := range s.results {
		snap.Results = append(snap.Results, viewOf(r))
	}
	return snap
}

func viewOf(r detection.Result) ResultView {
	return ResultView{
		Name:       r.Name,
		Quantity:   r.Quantity,
		Confidence: r.Confidence,
		Percent:    ConfidencePercent(r.Confidence),
	}
}

// ConfidencePercent renders a [0,1] confidence as a whole percent.
func ConfidencePercent(confidence float64) string {
	return decimal.NewFromFloat(confidence).
		Shift(2).
		Round(0).
		String() + "%"
}
