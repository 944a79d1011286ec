// Package capture provides image sources (camera devices and uploaded files)
// and the frame encoder that turns them into data URL payloads.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera available")
	ErrStreamStopped    = errors.New("stream stopped")
	ErrCameraInUse      = errors.New("camera in use by another session")
)

// PermissionError is returned when a camera cannot be acquired.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Device is a camera that can be opened into a live stream.
type Device interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
	// ActiveTracks counts tracks of streams opened and not yet stopped.
	ActiveTracks() int
}

// Stream is an open camera. Stop releases every track and is safe to call
// more than once.
type Stream interface {
	Frame() (image.Image, error)
	Stop()
}

// trackSet accounts for the tracks of one stream against its device. A
// device carries at most one open stream.
type trackSet struct {
	active *atomic.Int64
	once   sync.Once
	done   atomic.Bool
}

func acquireTracks(active *atomic.Int64) (*trackSet, error) {
	if !active.CompareAndSwap(0, 1) {
		return nil, ErrCameraInUse
	}
	return &trackSet{active: active}, nil
}

func (t *trackSet) stop() {
	t.once.Do(func() {
		t.done.Store(true)
		t.active.Add(-1)
	})
}

func (t *trackSet) stopped() bool { return t.done.Load() }

//
// Synthetic camera
//

// SyntheticCamera produces a moving test pattern. It is the default device
// on machines without a camera.
type SyntheticCamera struct {
	Width, Height int
	active        atomic.Int64
}

func NewSyntheticCamera(width, height int) *SyntheticCamera {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	return &SyntheticCamera{Width: width, Height: height}
}

func (c *SyntheticCamera) Name() string { return "synthetic" }

func (c *SyntheticCamera) ActiveTracks() int { return int(c.active.Load()) }

func (c *SyntheticCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PermissionError{Device: c.Name(), Err: err}
	}
	tracks, err := acquireTracks(&c.active)
	if err != nil {
		return nil, err
	}
	return &syntheticStream{cam: c, tracks: tracks}, nil
}

type syntheticStream struct {
	cam    *SyntheticCamera
	tracks *trackSet
	mu     sync.Mutex
	seq    int
}

func (s *syntheticStream) Frame() (image.Image, error) {
	if s.tracks.stopped() {
		return nil, ErrStreamStopped
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	w, h := s.cam.Width, s.cam.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + seq*8) % 256),
				G: uint8(y * 255 / h),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img, nil
}

func (s *syntheticStream) Stop() { s.tracks.stop() }

//
// Directory camera
//

// DirCamera replays image files from a directory, one per Frame call.
type DirCamera struct {
	Dir    string
	active atomic.Int64
}

func NewDirCamera(dir string) *DirCamera {
	return &DirCamera{Dir: dir}
}

func (c *DirCamera) Name() string { return "dir:" + c.Dir }

func (c *DirCamera) ActiveTracks() int { return int(c.active.Load()) }

func (c *DirCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PermissionError{Device: c.Name(), Err: err}
	}
	if c.ActiveTracks() > 0 {
		return nil, ErrCameraInUse
	}

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, &PermissionError{Device: c.Name(), Err: ErrPermissionDenied}
		}
		return nil, &PermissionError{Device: c.Name(), Err: fmt.Errorf("%w: %v", ErrNoDevice, err)}
	}

	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			frames = append(frames, filepath.Join(c.Dir, e.Name()))
		}
	}
	if len(frames) == 0 {
		return nil, &PermissionError{Device: c.Name(), Err: fmt.Errorf("%w: no frames in %s", ErrNoDevice, c.Dir)}
	}
	sort.Strings(frames)

	tracks, err := acquireTracks(&c.active)
	if err != nil {
		return nil, err
	}
	return &dirStream{frames: frames, tracks: tracks}, nil
}

type dirStream struct {
	frames []string
	tracks *trackSet
	mu     sync.Mutex
	next   int
}

func (s *dirStream) Frame() (image.Image, error) {
	if s.tracks.stopped() {
		return nil, ErrStreamStopped
	}
	s.mu.Lock()
	path := s.frames[s.next%len(s.frames)]
	s.next++
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func (s *dirStream) Stop() { s.tracks.stop() }

//
// Unavailable camera
//

// UnavailableCamera always refuses to open.
type UnavailableCamera struct {
	Err error
}

func (c UnavailableCamera) Name() string { return "none" }

func (c UnavailableCamera) ActiveTracks() int { return 0 }

func (c UnavailableCamera) Open(ctx context.Context) (Stream, error) {
	err := c.Err
	if err == nil {
		err = ErrNoDevice
	}
	return nil, &PermissionError{Device: c.Name(), Err: err}
}

// NewDevice maps a CAMERA_SOURCE setting to a device.
func NewDevice(source string) Device {
	switch strings.TrimSpace(source) {
	case "", "synthetic":
		return NewSyntheticCamera(640, 480)
	case "none":
		return UnavailableCamera{}
	default:
		return NewDirCamera(source)
	}
}
