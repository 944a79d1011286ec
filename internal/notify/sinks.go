package notify

import (
	"log/slog"
	"sync"

	"stockscan/internal/logger"
)

const DefaultRecentSize = 50

// Recent keeps the last N notifications for polling clients.
type Recent struct {
	mu    sync.RWMutex
	buf   []Notification
	size  int
	start int
	count int
}

func NewRecent(size int) *Recent {
	if size <= 0 {
		size = DefaultRecentSize
	}
	return &Recent{buf: make([]Notification, size), size: size}
}

func (r *Recent) Add(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.start + r.count) % r.size
	r.buf[idx] = n
	if r.count < r.size {
		r.count++
	} else {
		r.start = (r.start + 1) % r.size
	}
}

// List returns notifications oldest first. A non-empty session limits the
// result to that session plus session-less messages.
func (r *Recent) List(session string) []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Notification, 0, r.count)
	for i := 0; i < r.count; i++ {
		n := r.buf[(r.start+i)%r.size]
		if session != "" && n.Session != "" && n.Session != session {
			continue
		}
		out = append(out, n)
	}
	return out
}

// LogSink writes every notification to the application log.
func LogSink(n Notification) {
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.LogFields(level, "notification", "level", string(n.Level), "message", n.Message, "session", n.Session)
}
