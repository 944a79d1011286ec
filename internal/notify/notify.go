// Package notify carries short user-facing messages (the "toasts") from the
// scan flow to whoever subscribed: the API's recent list, the log, MQTT.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Session string    `json:"session,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier is what producers depend on.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Discard drops everything.
var Discard Notifier = NotifierFunc(func(Notification) {})

type subscriber struct {
	id int
	fn func(Notification)
}

// Hub fans notifications out to subscribers synchronously, in publish order.
type Hub struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID int
}

func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub) Subscribe(fn func(Notification)) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify fills in ID and Time when missing and delivers n to every subscriber.
func (h *Hub) Notify(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	h.mu.Lock()
	subs := make([]subscriber, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(n)
	}
}

func (h *Hub) Publish(level Level, message string) {
	h.Notify(Notification{Level: level, Message: message})
}

func Info(n Notifier, session, message string) {
	n.Notify(Notification{Level: LevelInfo, Message: message, Session: session})
}

func Success(n Notifier, session, message string) {
	n.Notify(Notification{Level: LevelSuccess, Message: message, Session: session})
}

func Warn(n Notifier, session, message string) {
	n.Notify(Notification{Level: LevelWarning, Message: message, Session: session})
}

func Error(n Notifier, session, message string) {
	n.Notify(Notification{Level: LevelError, Message: message, Session: session})
}
