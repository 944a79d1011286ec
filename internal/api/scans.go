package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"stockscan/internal/capture"
	"stockscan/internal/data"
	"stockscan/internal/inventory"
	"stockscan/internal/middleware"
	"stockscan/internal/scan"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// maxUploadBytes leaves room for multipart framing and base64 growth.
const maxUploadBytes = capture.MaxImageBytes*4/3 + 1<<20

type confirmResponse struct {
	Added   []inventory.Item `json:"added"`
	Session scan.Snapshot    `json:"session"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*scan.Session, bool) {
	sess, err := s.Scans.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	sess := s.Scans.Create()
	middleware.WriteAPISuccessStatus(w, r, http.StatusCreated, sess.Snapshot(false))
}

// scanHistory lists confirmed scan lines, newest first. ?limit= caps the
// count (default 20, at most 200).
func (s *Server) scanHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	events := []data.ScanEvent{}
	if s.History != nil {
		found, err := s.History.RecentEvents(r.Context(), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if found != nil {
			events = found
		}
	}
	middleware.WriteAPISuccess(w, r, events)
}

// getScan returns the session; ?image=1 includes the submitted image.
func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	withImage := r.URL.Query().Get("image") != ""
	middleware.WriteAPISuccess(w, r, sess.Snapshot(withImage))
}

func (s *Server) closeScan(w http.ResponseWriter, r *http.Request) {
	if err := s.Scans.Close(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]bool{"closed": true})
}

func (s *Server) startCamera(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(sess *scan.Session) error {
		return sess.StartCamera(r.Context())
	})
}

func (s *Server) cancelCamera(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(sess *scan.Session) error {
		sess.CancelCamera()
		return nil
	})
}

// captureFrame answers 202: detection continues in the background and the
// client polls the session.
func (s *Server) captureFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Capture(); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccessStatus(w, r, http.StatusAccepted, sess.Snapshot(false))
}

// upload accepts a multipart "file" field or a JSON {"image": dataURL} body.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var err error
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		err = uploadMultipart(r, sess)
	case strings.Contains(contentType, "application/json"):
		var req struct {
			Image string `json:"image"`
		}
		if perr := middleware.ParseJSONRequest(r, &req); perr != nil {
			badRequest(w, r, perr.Error())
			return
		}
		err = sess.UploadDataURL(req.Image)
	default:
		middleware.WriteAPIError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type",
			"Send multipart/form-data with a file field or JSON with an image data URL", contentType)
		return
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = capture.ErrTooLarge
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccessStatus(w, r, http.StatusAccepted, sess.Snapshot(false))
}

func uploadMultipart(r *http.Request, sess *scan.Session) error {
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return capture.ErrEmptyImage
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, capture.MaxImageBytes+1))
	if err != nil {
		return err
	}
	return sess.Upload(raw)
}

func (s *Server) resetScan(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(sess *scan.Session) error {
		sess.Reset()
		return nil
	})
}

func (s *Server) confirmScan(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	added, err := sess.Confirm(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, confirmResponse{Added: added, Session: sess.Snapshot(false)})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(*scan.Session) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := fn(sess); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, sess.Snapshot(false))
}
