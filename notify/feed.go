// Package notify holds the notifications shown to the user after each action.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Status string

const (
	Success Status = "success"
	Error   Status = "error"
	Warning Status = "warning"
	Info    Status = "info"
)

const (
	DefaultTitle    = "Notification"
	DefaultDuration = 2 * time.Second
	DefaultCapacity = 256
)

type Notification struct {
	ID       uint64        `json:"id"`
	Time     time.Time     `json:"time"`
	Status   Status        `json:"status"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// Feed is a bounded, ordered list of notifications. IDs grow monotonically
// starting at 1, so a reader can poll with the last ID it has seen.
type Feed struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	nextID   uint64
	now      func() time.Time
	log      *logrus.Entry
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{
		capacity: capacity,
		nextID:   1,
		now:      time.Now,
		log:      logrus.StandardLogger().WithField("type", "notify"),
	}
}

func (f *Feed) Notify(status Status, message string) Notification {
	f.mu.Lock()
	n := Notification{
		ID:       f.nextID,
		Time:     f.now().UTC(),
		Status:   status,
		Title:    DefaultTitle,
		Message:  message,
		Duration: DefaultDuration,
	}
	f.nextID++
	f.items = append(f.items, n)
	if len(f.items) > f.capacity {
		f.items = append(f.items[:0:0], f.items[len(f.items)-f.capacity:]...)
	}
	f.mu.Unlock()

	entry := f.log.WithFields(logrus.Fields{
		"id":     n.ID,
		"status": string(n.Status),
	})
	switch status {
	case Error:
		entry.Error(message)
	case Warning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
	return n
}

func (f *Feed) Successf(format string, args ...interface{}) Notification {
	return f.Notify(Success, fmt.Sprintf(format, args...))
}

func (f *Feed) Errorf(format string, args ...interface{}) Notification {
	return f.Notify(Error, fmt.Sprintf(format, args...))
}

func (f *Feed) Warningf(format string, args ...interface{}) Notification {
	return f.Notify(Warning, fmt.Sprintf(format, args...))
}

func (f *Feed) Infof(format string, args ...interface{}) Notification {
	return f.Notify(Info, fmt.Sprintf(format, args...))
}

// Since returns notifications with ID greater than id, oldest first.
// Notifications evicted from the feed are not returned.
func (f *Feed) Since(id uint64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Notification{}
	for _, n := range f.items {
		if n.ID > id {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the most recent notification.
func (f *Feed) Last() (Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return Notification{}, false
	}
	return f.items[len(f.items)-1], true
}
