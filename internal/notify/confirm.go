package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/reschedule"
)

// Action keys of the attendee prompt.
const (
	ActionNotify = "notify"
	ActionSkip   = "skip"
)

// sender is the part of Notifier the confirmer needs.
type sender interface {
	Send(Notification) (uint32, error)
	Dismiss(id uint32) error
}

// Confirmer asks through a desktop notification whether attendees of a
// moved meeting should be notified. It implements reschedule.Confirmer.
type Confirmer struct {
	n       sender
	timeout time.Duration

	mu      sync.Mutex
	waiting map[uint32]chan string
}

// NewConfirmer returns a confirmer that waits up to timeout for an answer.
func NewConfirmer(n *Notifier, timeout time.Duration) (*Confirmer, error) {
	c := newConfirmer(n, timeout)
	if err := n.WatchActions(c.dispatch); err != nil {
		return nil, err
	}
	return c, nil
}

func newConfirmer(n sender, timeout time.Duration) *Confirmer {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Confirmer{n: n, timeout: timeout, waiting: make(map[uint32]chan string)}
}

// dispatch routes an action to the prompt waiting for it.
func (c *Confirmer) dispatch(id uint32, key string) {
	c.mu.Lock()
	ch, ok := c.waiting[id]
	delete(c.waiting, id)
	c.mu.Unlock()
	if ok {
		ch <- key
	}
}

// ConfirmNotify shows the prompt and blocks until the user answers, the
// prompt is dismissed, or the timeout passes. Only an explicit "send
// update" answer returns true.
func (c *Confirmer) ConfirmNotify(ctx context.Context, ev calendar.Event, res reschedule.Result) (bool, error) {
	ch := make(chan string, 1)

	// Hold the lock across Send so an immediate answer finds its waiter.
	c.mu.Lock()
	id, err := c.n.Send(confirmNotification(ev, res, c.timeout))
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	c.waiting[id] = ch
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case key := <-ch:
		slog.Debug("attendee prompt answered", "event", ev.Key(), "action", key)
		return key == ActionNotify, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiting, id)
		c.mu.Unlock()
		if err := c.n.Dismiss(id); err != nil {
			slog.Debug("dismiss attendee prompt", "id", id, "error", err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, nil
		}
		return false, ctx.Err()
	}
}

func confirmNotification(ev calendar.Event, res reschedule.Result, timeout time.Duration) Notification {
	return Notification{
		Summary: fmt.Sprintf("Update attendees of %q?", ev.Summary),
		Body:    "Moved to " + formatRange(res.Start, res.End),
		Timeout: timeout,
		Urgency: UrgencyNormal,
		Actions: []Action{
			{Key: ActionNotify, Label: "Send update"},
			{Key: ActionSkip, Label: "Don't send"},
		},
	}
}

func formatRange(start, end time.Time) string {
	if start.YearDay() == end.YearDay() && start.Year() == end.Year() {
		return start.Format("Mon Jan 2 15:04") + " - " + end.Format("15:04")
	}
	return start.Format("Mon Jan 2 15:04") + " - " + end.Format("Mon Jan 2 15:04")
}

var _ reschedule.Confirmer = (*Confirmer)(nil)
