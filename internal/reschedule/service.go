package reschedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cpuguy83/calgrid/internal/calendar"
)

// ErrNoSink is returned by Commit when the service has no sink.
var ErrNoSink = errors.New("reschedule: no sink configured")

// Confirmer asks the user whether attendees should be told about a change.
type Confirmer interface {
	ConfirmNotify(ctx context.Context, ev calendar.Event, res Result) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, ev calendar.Event, res Result) (bool, error)

// ConfirmNotify calls f.
func (f ConfirmFunc) ConfirmNotify(ctx context.Context, ev calendar.Event, res Result) (bool, error) {
	return f(ctx, ev, res)
}

// KnownGood keeps the last state of each event that a sink accepted.
type KnownGood interface {
	Save(ev calendar.Event) error
	Load(key string) (calendar.Event, bool, error)
}

// RejectedError is returned when the sink refuses a change. Event is the
// known-good state the caller must display again.
type RejectedError struct {
	Event calendar.Event
	Err   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("reschedule %s rejected: %v", e.Event.Key(), e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Code returns the sink's error code, or CodeRejected when the sink did
// not classify the failure.
func (e *RejectedError) Code() calendar.SinkCode {
	var se *calendar.SinkError
	if errors.As(e.Err, &se) {
		return se.Code
	}
	return calendar.CodeRejected
}

// Outcome is the final result of an asynchronous commit.
type Outcome struct {
	// Event is what the caller should display: the moved event on success,
	// the known-good state otherwise.
	Event calendar.Event
	Err   error
}

// Service commits calculated results to a sink.
type Service struct {
	Sink      calendar.Sink
	Confirmer Confirmer
	KnownGood KnownGood
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Apply returns ev moved to the times in res.
func Apply(ev calendar.Event, res Result) calendar.Event {
	if res.NoOp {
		return ev
	}
	ev.Start, ev.End = res.Start, res.End
	if ev.IsOccurrence() {
		ev.Exception = true
	}
	return ev
}

// notify decides whether attendees hear about the change. Without a
// confirmer the sink's default applies and attendees are notified.
func (s *Service) notify(ctx context.Context, ev calendar.Event, res Result) bool {
	if !NeedsAttendeeConfirmation(ev, res, s.now()) {
		return false
	}
	if s.Confirmer == nil {
		return true
	}
	ok, err := s.Confirmer.ConfirmNotify(ctx, ev, res)
	if err != nil {
		slog.Warn("attendee confirmation failed, not notifying", "event", ev.Key(), "error", err)
		return false
	}
	return ok
}

// knownGood returns the last state of ev the sink accepted.
func (s *Service) knownGood(ev calendar.Event) calendar.Event {
	if s.KnownGood == nil {
		return ev
	}
	good, ok, err := s.KnownGood.Load(ev.Key())
	if err != nil {
		slog.Warn("load known-good snapshot", "event", ev.Key(), "error", err)
		return ev
	}
	if !ok {
		return ev
	}
	return good
}

// Commit persists res for ev and returns the event as the sink now holds
// it. When the sink refuses, the error is a *RejectedError carrying the
// known-good event.
func (s *Service) Commit(ctx context.Context, ev calendar.Event, res Result) (calendar.Event, error) {
	if res.NoOp {
		return ev, nil
	}
	if s.Sink == nil {
		return ev, ErrNoSink
	}

	// ev is the pre-drag state from the latest refresh, which is what the
	// sink holds now. An older snapshot must not win over it.
	if s.KnownGood != nil {
		if err := s.KnownGood.Save(ev); err != nil {
			slog.Warn("save known-good snapshot", "event", ev.Key(), "error", err)
		}
	}

	notify := s.notify(ctx, ev, res)
	req := res.Request(ev.ID, notify)

	slog.Debug("committing reschedule",
		"event", ev.Key(),
		"start", req.NewStart,
		"end", req.NewEnd,
		"notify", notify)

	if err := s.Sink.Reschedule(ctx, req); err != nil {
		good := s.knownGood(ev)
		slog.Info("reschedule rejected", "event", ev.Key(), "error", err)
		return good, &RejectedError{Event: good, Err: err}
	}

	moved := Apply(ev, res)
	if s.KnownGood != nil {
		if err := s.KnownGood.Save(moved); err != nil {
			slog.Warn("save known-good snapshot", "event", moved.Key(), "error", err)
		}
	}
	return moved, nil
}

// CommitAsync returns the moved event immediately and commits in the
// background. done receives the final outcome; on rejection the caller
// must replace the provisional event with Outcome.Event.
func (s *Service) CommitAsync(ctx context.Context, ev calendar.Event, res Result, done func(Outcome)) calendar.Event {
	provisional := Apply(ev, res)
	go func() {
		got, err := s.Commit(ctx, ev, res)
		if done != nil {
			done(Outcome{Event: got, Err: err})
		}
	}()
	return provisional
}
