package detection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxQuantity caps the count of a single detection line.
const MaxQuantity = 1_000_000

// DecodeResults parses a detection response. The canonical shape is a JSON
// list; a single object and a {"detections": [...]} envelope are accepted and
// normalized to a list. null and an empty body decode to an empty list.
func DecodeResults(body []byte) ([]Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Result{}, nil
	}

	var raw []Result
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("parse result list: %w", err)
		}
	case '{':
		var obj struct {
			Result
			Detections *[]Result `json:"detections"`
			Error      string    `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("parse result object: %w", err)
		}
		switch {
		case obj.Error != "":
			return nil, fmt.Errorf("service reported error: %s", obj.Error)
		case obj.Detections != nil:
			raw = *obj.Detections
		case obj.Name != "":
			raw = []Result{obj.Result}
		default:
			return nil, fmt.Errorf("object has neither name nor detections")
		}
	default:
		return nil, fmt.Errorf("unexpected response: %.40q", trimmed)
	}

	return normalize(raw), nil
}

func normalize(in []Result) []Result {
	out := make([]Result, 0, len(in))
	for _, r := range in {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			continue
		}
		switch {
		case r.Quantity < 0:
			r.Quantity = 0
		case r.Quantity > MaxQuantity:
			r.Quantity = MaxQuantity
		}
		switch {
		case r.Confidence < 0:
			r.Confidence = 0
		case r.Confidence > 1:
			r.Confidence = 1
		}
		out = append(out, r)
	}
	return out
}
