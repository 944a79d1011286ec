// Package scan drives one capture-and-detect session: camera or upload,
// asynchronous detection, and confirmation into the inventory.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockscan/internal/capture"
	"stockscan/internal/detection"
	"stockscan/internal/inventory"
	"stockscan/internal/logger"
	"stockscan/internal/notify"
)

type State string

const (
	Idle      State = "idle"
	Streaming State = "streaming"
	Pending   State = "pending"
	Resolved  State = "resolved"
)

const (
	MsgCameraOn     = "Camera activated. Point at an item to scan."
	MsgCameraDenied = "Could not access camera. Please check permissions."
	MsgCameraInUse  = "Camera is in use by another scan."
	MsgProcessing   = "Processing image..."
)

var (
	ErrBusy             = errors.New("detection already in progress")
	ErrInvalidState     = errors.New("operation not allowed in current state")
	ErrNothingToConfirm = errors.New("no detection result to confirm")
	ErrClosed           = errors.New("session closed")
)

// Detector is satisfied by *detection.Client. Detect never fails: a nil
// result means the detection failed and was already reported.
type Detector interface {
	Detect(ctx context.Context, payload, session string) []detection.Result
}

type Inventory interface {
	AddScanned(name string, quantity int) (inventory.Item, error)
}

// Recorder stores confirmed scans. Optional.
type Recorder interface {
	RecordScan(ctx context.Context, sessionID string, results []detection.Result, at time.Time) error
}

// Deps are shared by every session of a Manager.
type Deps struct {
	Device    capture.Device
	Detector  Detector
	Inventory Inventory
	History   Recorder
	Notifier  notify.Notifier
}

// Session is safe for concurrent use. Every transition holds mu; detection
// runs in its own goroutine and is matched back by generation.
type Session struct {
	id   string
	deps Deps
	base context.Context

	mu           sync.Mutex
	state        State
	stream       capture.Stream
	image        string
	results      []detection.Result
	cancel       context.CancelFunc
	settled      chan struct{}
	gen          uint64
	closed       bool
	lastActivity time.Time
}

func newSession(base context.Context, id string, deps Deps) *Session {
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	return &Session{
		id:           id,
		deps:         deps,
		base:         base,
		state:        Idle,
		lastActivity: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartCamera opens the device. Starting while already streaming is a no-op.
func (s *Session) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	switch s.state {
	case Streaming:
		return nil
	case Pending:
		return ErrBusy
	case Resolved:
		s.resetLocked()
	}

	stream, err := s.deps.Device.Open(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrCameraInUse) {
			notify.Warn(s.deps.Notifier, s.id, MsgCameraInUse)
			return err
		}
		logger.LogWarn("Session %s: camera %s unavailable: %v", s.id, s.deps.Device.Name(), err)
		notify.Error(s.deps.Notifier, s.id, MsgCameraDenied)
		var perm *capture.PermissionError
		if !errors.As(err, &perm) {
			err = &capture.PermissionError{Device: s.deps.Device.Name(), Err: err}
		}
		return err
	}

	s.stream = stream
	s.state = Streaming
	notify.Info(s.deps.Notifier, s.id, MsgCameraOn)
	return nil
}

// CancelCamera stops streaming without capturing. No-op unless streaming.
func (s *Session) CancelCamera() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.state != Streaming {
		return
	}
	s.releaseStreamLocked()
	s.state = Idle
}

// Capture grabs one frame from the open stream and submits it. The stream
// is released whether or not the frame could be taken.
func (s *Session) Capture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	switch s.state {
	case Pending:
		return ErrBusy
	case Streaming:
	default:
		return ErrInvalidState
	}

	img, err := s.stream.Frame()
	s.releaseStreamLocked()
	s.state = Idle
	if err != nil {
		logger.LogError("Session %s: frame grab failed: %v", s.id, err)
		notify.Error(s.deps.Notifier, s.id, detection.MsgFailed)
		return fmt.Errorf("capture frame: %w", err)
	}
	payload, err := capture.EncodeFrame(img)
	if err != nil {
		logger.LogError("Session %s: frame encode failed: %v", s.id, err)
		notify.Error(s.deps.Notifier, s.id, detection.MsgFailed)
		return fmt.Errorf("encode frame: %w", err)
	}

	s.beginDetectionLocked(payload)
	return nil
}

// Upload submits an image file. Allowed from Idle, and from Resolved where
// it replaces the previous result.
func (s *Session) Upload(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.uploadAllowedLocked(); err != nil {
		return err
	}
	payload, err := capture.EncodeFile(data)
	if err != nil {
		return err
	}
	s.resetLocked()
	s.beginDetectionLocked(payload)
	return nil
}

// UploadDataURL submits an already encoded image.
func (s *Session) UploadDataURL(dataURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.uploadAllowedLocked(); err != nil {
		return err
	}
	payload, err := capture.NormalizeDataURL(dataURL)
	if err != nil {
		return err
	}
	s.resetLocked()
	s.beginDetectionLocked(payload)
	return nil
}

// Reset returns the session to Idle from any state. A detection still in
// flight is cancelled and its late result discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.resetLocked()
}

// Confirm adds every detected item to the inventory and resets the session.
func (s *Session) Confirm(ctx context.Context) ([]inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	if s.state == Pending {
		return nil, ErrBusy
	}
	if s.state != Resolved || len(s.results) == 0 {
		return nil, ErrNothingToConfirm
	}

	results := s.results
	added := make([]inventory.Item, 0, len(results))
	for _, r := range results {
		item, err := s.deps.Inventory.AddScanned(r.Name, r.Quantity)
		if err != nil {
			return added, fmt.Errorf("add %q to inventory: %w", r.Name, err)
		}
		added = append(added, item)
		notify.Success(s.deps.Notifier, s.id, fmt.Sprintf("Added %d %s(s) to inventory!", r.Quantity, r.Name))
	}

	if s.deps.History != nil {
		if err := s.deps.History.RecordScan(ctx, s.id, results, time.Now()); err != nil {
			logger.LogWarn("Session %s: failed to record scan history: %v", s.id, err)
		}
	}

	logger.LogInfo("Session %s: confirmed %d detection(s)", s.id, len(results))
	s.resetLocked()
	return added, nil
}

// Wait blocks until no detection is pending or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()
	if settled == nil {
		return nil
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the camera and cancels any detection. Further operations
// fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.resetLocked()
	s.closed = true
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

//
// Internal helpers (caller holds mu)
//

func (s *Session) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	s.touchLocked()
	return nil
}

func (s *Session) touchLocked() {
	s.lastActivity = time.Now()
}

func (s *Session) uploadAllowedLocked() error {
	if err := s.usableLocked(); err != nil {
		return err
	}
	switch s.state {
	case Pending:
		return ErrBusy
	case Streaming:
		return ErrInvalidState
	}
	return nil
}

func (s *Session) releaseStreamLocked() {
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
}

func (s *Session) resetLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.settleLocked()
	s.releaseStreamLocked()
	s.image = ""
	s.results = nil
	s.state = Idle
}

func (s *Session) settleLocked() {
	if s.settled != nil {
		close(s.settled)
		s.settled = nil
	}
}

func (s *Session) beginDetectionLocked(payload string) {
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.base)

	s.image = payload
	s.results = nil
	s.state = Pending
	s.cancel = cancel
	s.settled = make(chan struct{})

	notify.Info(s.deps.Notifier, s.id, MsgProcessing)
	go s.runDetection(ctx, gen, payload)
}

func (s *Session) runDetection(ctx context.Context, gen uint64, payload string) {
	results := s.deps.Detector.Detect(ctx, payload, s.id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		logger.LogDebug("Session %s: discarding stale detection result", s.id)
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.results = results
	s.state = Resolved
	s.touchLocked()
	s.settleLocked()
}
