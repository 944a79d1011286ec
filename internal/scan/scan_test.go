package scan

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stockscan/internal/capture"
	"stockscan/internal/detection"
	"stockscan/internal/inventory"
	"stockscan/internal/notify"
)

type collector struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (c *collector) Notify(n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
}

func (c *collector) has(level notify.Level, message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.got {
		if n.Level == level && n.Message == message {
			return true
		}
	}
	return false
}

type fakeHistory struct {
	mu    sync.Mutex
	scans [][]detection.Result
}

func (f *fakeHistory) RecordScan(_ context.Context, _ string, results []detection.Result, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, results)
	return nil
}

// blockingDetector holds every request until its context ends.
type blockingDetector struct {
	started chan struct{}
	ended   chan struct{}
}

func newBlockingDetector() *blockingDetector {
	return &blockingDetector{started: make(chan struct{}, 4), ended: make(chan struct{}, 4)}
}

func (b *blockingDetector) Detect(ctx context.Context, _, _ string) []detection.Result {
	b.started <- struct{}{}
	<-ctx.Done()
	b.ended <- struct{}{}
	return []detection.Result{{Name: "Late", Quantity: 1, Confidence: 1}}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newInventory(t *testing.T) *inventory.Service {
	t.Helper()
	inv, err := inventory.NewSeededService(inventory.DefaultItems())
	if err != nil {
		t.Fatal(err)
	}
	return inv
}

func waitSettled(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("detection did not settle: %v", err)
	}
}

func detectionServer(t *testing.T, status int, body string, notifier notify.Notifier) *detection.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return detection.NewClient(detection.Config{Endpoint: srv.URL, UseRealAPI: true}, notifier)
}

func TestConfirmChairAddsToInventory(t *testing.T) {
	inv := newInventory(t)
	notes := &collector{}
	history := &fakeHistory{}
	m := NewManager(Deps{
		Device:    capture.NewSyntheticCamera(16, 16),
		Detector:  detectionServer(t, http.StatusOK, `[{"name":"Chair","quantity":3,"confidence":0.92}]`, notes),
		Inventory: inv,
		History:   history,
		Notifier:  notes,
	})
	defer m.Shutdown()
	s := m.Create()

	if err := s.Upload(pngBytes(t)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	waitSettled(t, s)

	snap := s.Snapshot(false)
	if snap.State != Resolved || len(snap.Results) != 1 || !snap.HasImage {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Results[0].Percent != "92%" {
		t.Errorf("percent = %q", snap.Results[0].Percent)
	}

	added, err := s.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if len(added) != 1 || added[0].Name != "Chair" || added[0].Quantity != 3 {
		t.Errorf("added = %+v", added)
	}
	if s.State() != Idle || s.Snapshot(false).HasImage {
		t.Errorf("session not reset: %+v", s.Snapshot(false))
	}
	if !notes.has(notify.LevelSuccess, "Added 3 Chair(s) to inventory!") {
		t.Errorf("missing confirm notification: %+v", notes.got)
	}
	if len(history.scans) != 1 {
		t.Errorf("history scans = %d", len(history.scans))
	}
	if _, err := s.Confirm(context.Background()); !errors.Is(err, ErrNothingToConfirm) {
		t.Errorf("second confirm: %v", err)
	}
}

func TestRemoteErrorResolvesWithoutResult(t *testing.T) {
	notes := &collector{}
	m := NewManager(Deps{
		Device:    capture.NewSyntheticCamera(16, 16),
		Detector:  detectionServer(t, http.StatusInternalServerError, "server error", notes),
		Inventory: newInventory(t),
		Notifier:  notes,
	})
	defer m.Shutdown()
	s := m.Create()

	if err := s.Upload(pngBytes(t)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	waitSettled(t, s)

	snap := s.Snapshot(false)
	if snap.State != Resolved || !snap.Failed || len(snap.Results) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !notes.has(notify.LevelError, detection.MsgFailed) {
		t.Errorf("missing failure notification: %+v", notes.got)
	}
	if _, err := s.Confirm(context.Background()); !errors.Is(err, ErrNothingToConfirm) {
		t.Errorf("confirm after failure: %v", err)
	}

	// A new upload is allowed straight from Resolved.
	if err := s.Upload(pngBytes(t)); err != nil {
		t.Errorf("re-upload: %v", err)
	}
	waitSettled(t, s)
}

func TestCameraCaptureReleasesTracks(t *testing.T) {
	cam := capture.NewSyntheticCamera(16, 16)
	notes := &collector{}
	m := NewManager(Deps{
		Device:    cam,
		Detector:  detection.NewClient(detection.Config{}, nil),
		Inventory: newInventory(t),
		Notifier:  notes,
	})
	defer m.Shutdown()
	s := m.Create()

	if err := s.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	if err := s.StartCamera(context.Background()); err != nil {
		t.Fatalf("second StartCamera: %v", err)
	}
	if cam.ActiveTracks() != 1 {
		t.Fatalf("ActiveTracks = %d, want 1", cam.ActiveTracks())
	}
	if !notes.has(notify.LevelInfo, MsgCameraOn) {
		t.Error("missing camera notification")
	}
	if err := s.Upload(pngBytes(t)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("upload while streaming: %v", err)
	}

	if err := s.Capture(); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if cam.ActiveTracks() != 0 {
		t.Errorf("tracks after capture = %d", cam.ActiveTracks())
	}
	waitSettled(t, s)
	snap := s.Snapshot(true)
	if got := len(snap.Results); got != len(detection.DefaultCatalog()) {
		t.Errorf("results = %d", got)
	}
	if !strings.HasPrefix(snap.Image, "data:image/jpeg;base64,") {
		t.Errorf("captured image = %.40s", snap.Image)
	}
}

func TestCameraSharedBetweenSessions(t *testing.T) {
	cam := capture.NewSyntheticCamera(16, 16)
	notes := &collector{}
	m := NewManager(Deps{
		Device:    cam,
		Detector:  detection.NewClient(detection.Config{}, nil),
		Inventory: newInventory(t),
		Notifier:  notes,
	})
	defer m.Shutdown()
	first, second := m.Create(), m.Create()

	if err := first.StartCamera(context.Background()); err != nil {
		t.Fatalf("first StartCamera: %v", err)
	}
	if err := second.StartCamera(context.Background()); !errors.Is(err, capture.ErrCameraInUse) {
		t.Fatalf("second StartCamera: %v", err)
	}
	if second.State() != Idle || cam.ActiveTracks() != 1 {
		t.Errorf("second state = %s, tracks = %d", second.State(), cam.ActiveTracks())
	}
	if !notes.has(notify.LevelWarning, MsgCameraInUse) {
		t.Error("missing camera in use notification")
	}

	if err := first.Capture(); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := second.StartCamera(context.Background()); err != nil {
		t.Errorf("StartCamera after release: %v", err)
	}
	waitSettled(t, first)
}

func TestCancelCameraReleasesTracks(t *testing.T) {
	cam := capture.NewSyntheticCamera(16, 16)
	m := NewManager(Deps{Device: cam, Detector: newBlockingDetector(), Inventory: newInventory(t)})
	defer m.Shutdown()
	s := m.Create()

	if err := s.StartCamera(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.CancelCamera()
	if cam.ActiveTracks() != 0 || s.State() != Idle {
		t.Errorf("tracks = %d state = %s", cam.ActiveTracks(), s.State())
	}
	s.CancelCamera()

	if err := s.StartCamera(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(s.ID()); err != nil {
		t.Fatal(err)
	}
	if cam.ActiveTracks() != 0 {
		t.Errorf("tracks after close = %d", cam.ActiveTracks())
	}
	if err := s.StartCamera(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("start after close: %v", err)
	}
}

func TestCameraDenied(t *testing.T) {
	notes := &collector{}
	m := NewManager(Deps{
		Device:    capture.UnavailableCamera{Err: capture.ErrPermissionDenied},
		Detector:  newBlockingDetector(),
		Inventory: newInventory(t),
		Notifier:  notes,
	})
	defer m.Shutdown()
	s := m.Create()

	err := s.StartCamera(context.Background())
	var perm *capture.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("err = %v", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %s", s.State())
	}
	if !notes.has(notify.LevelError, MsgCameraDenied) {
		t.Error("missing denied notification")
	}
}

func TestPendingRejectsAndResetDiscards(t *testing.T) {
	det := newBlockingDetector()
	m := NewManager(Deps{Device: capture.NewSyntheticCamera(16, 16), Detector: det, Inventory: newInventory(t)})
	defer m.Shutdown()
	s := m.Create()

	if err := s.Upload(pngBytes(t)); err != nil {
		t.Fatal(err)
	}
	<-det.started

	if err := s.Upload(pngBytes(t)); !errors.Is(err, ErrBusy) {
		t.Errorf("upload while pending: %v", err)
	}
	if err := s.StartCamera(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("camera while pending: %v", err)
	}
	if _, err := s.Confirm(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("confirm while pending: %v", err)
	}

	s.Reset()
	select {
	case <-det.ended:
	case <-time.After(5 * time.Second):
		t.Fatal("detection not cancelled by reset")
	}

	// Give the goroutine a chance to try to publish its late result.
	time.Sleep(20 * time.Millisecond)
	if snap := s.Snapshot(false); snap.State != Idle || len(snap.Results) != 0 {
		t.Errorf("late result leaked: %+v", snap)
	}
}

func TestReapIdle(t *testing.T) {
	cam := capture.NewSyntheticCamera(16, 16)
	m := NewManager(Deps{Device: cam, Detector: newBlockingDetector(), Inventory: newInventory(t)})
	defer m.Shutdown()

	stale := m.Create()
	fresh := m.Create()
	if err := stale.StartCamera(context.Background()); err != nil {
		t.Fatal(err)
	}
	stale.mu.Lock()
	stale.lastActivity = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	if n := m.ReapIdle(15 * time.Minute); n != 1 {
		t.Errorf("reaped %d, want 1", n)
	}
	if _, err := m.Get(stale.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("stale session still present: %v", err)
	}
	if _, err := m.Get(fresh.ID()); err != nil {
		t.Errorf("fresh session reaped: %v", err)
	}
	if cam.ActiveTracks() != 0 {
		t.Errorf("reaped session kept camera: %d tracks", cam.ActiveTracks())
	}
}

func TestConfidencePercent(t *testing.T) {
	cases := map[float64]string{0.92: "92%", 0.855: "86%", 1: "100%", 0: "0%"}
	for in, want := range cases {
		if got := ConfidencePercent(in); got != want {
			t.Errorf("ConfidencePercent(%v) = %q, want %q", in, got, want)
		}
	}
}
