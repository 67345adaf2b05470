package reschedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/grid"
	"github.com/kylelemons/godebug/pretty"
)

type fakeSink struct {
	mu   sync.Mutex
	reqs []calendar.RescheduleRequest
	err  error
}

func (s *fakeSink) Reschedule(ctx context.Context, req calendar.RescheduleRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.err
}

type memKnownGood map[string]calendar.Event

func (m memKnownGood) Save(ev calendar.Event) error {
	m[ev.Key()] = ev
	return nil
}

func (m memKnownGood) Load(key string) (calendar.Event, bool, error) {
	ev, ok := m[key]
	return ev, ok, nil
}

func meeting() (calendar.Event, Result) {
	ev := calendar.Event{
		ID:      "m1",
		Summary: "Planning",
		Start:   at(0, 14, 0),
		End:     at(0, 14, 30),
		Meeting: calendar.MeetingSent,
	}
	return ev, Result{Start: at(1, 10, 0), End: at(1, 10, 30)}
}

func TestCommit(t *testing.T) {
	ev, res := meeting()
	sink := &fakeSink{}
	good := memKnownGood{}
	var asked int
	svc := &Service{
		Sink:      sink,
		KnownGood: good,
		Now:       func() time.Time { return at(0, 9, 0) },
		Confirmer: ConfirmFunc(func(ctx context.Context, e calendar.Event, r Result) (bool, error) {
			asked++
			return true, nil
		}),
	}

	got, err := svc.Commit(context.Background(), ev, res)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if asked != 1 {
		t.Errorf("confirmer asked %d times", asked)
	}

	want := calendar.RescheduleRequest{
		EventID:         "m1",
		NewStart:        res.Start,
		NewEnd:          res.End,
		NotifyAttendees: true,
	}
	if diff := pretty.Compare(sink.reqs, []calendar.RescheduleRequest{want}); diff != "" {
		t.Errorf("requests diff (-got +want):\n%s", diff)
	}
	if !got.Start.Equal(res.Start) || !got.End.Equal(res.End) {
		t.Errorf("returned %v - %v", got.Start, got.End)
	}
	if saved := good["m1"]; !saved.Start.Equal(res.Start) {
		t.Errorf("known-good not updated: %v", saved.Start)
	}
}

func TestCommitNotify(t *testing.T) {
	tests := []struct {
		name       string
		meeting    calendar.MeetingState
		confirmer  Confirmer
		wantNotify bool
		wantAsked  bool
	}{
		{
			name:       "accepted",
			meeting:    calendar.MeetingSent,
			confirmer:  ConfirmFunc(func(context.Context, calendar.Event, Result) (bool, error) { return true, nil }),
			wantNotify: true,
			wantAsked:  true,
		},
		{
			name:      "declined",
			meeting:   calendar.MeetingSent,
			confirmer: ConfirmFunc(func(context.Context, calendar.Event, Result) (bool, error) { return false, nil }),
			wantAsked: true,
		},
		{
			name:    "prompt failed",
			meeting: calendar.MeetingSent,
			confirmer: ConfirmFunc(func(context.Context, calendar.Event, Result) (bool, error) {
				return true, errors.New("no notification daemon")
			}),
			wantAsked: true,
		},
		{
			name:       "no confirmer",
			meeting:    calendar.MeetingSent,
			wantNotify: true,
		},
		{
			name:      "not a sent meeting",
			meeting:   calendar.MeetingReceived,
			confirmer: ConfirmFunc(func(context.Context, calendar.Event, Result) (bool, error) { return true, nil }),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, res := meeting()
			ev.Meeting = tt.meeting

			asked := false
			var confirmer Confirmer
			if tt.confirmer != nil {
				confirmer = ConfirmFunc(func(ctx context.Context, e calendar.Event, r Result) (bool, error) {
					asked = true
					return tt.confirmer.ConfirmNotify(ctx, e, r)
				})
			}

			sink := &fakeSink{}
			svc := &Service{Sink: sink, Confirmer: confirmer, Now: func() time.Time { return at(0, 9, 0) }}
			if _, err := svc.Commit(context.Background(), ev, res); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			if asked != tt.wantAsked {
				t.Errorf("asked = %v, want %v", asked, tt.wantAsked)
			}
			if got := sink.reqs[0].NotifyAttendees; got != tt.wantNotify {
				t.Errorf("NotifyAttendees = %v, want %v", got, tt.wantNotify)
			}
		})
	}
}

func TestCommitRejected(t *testing.T) {
	ev, res := meeting()
	ev.Meeting = calendar.MeetingNone

	sinkErr := &calendar.SinkError{Code: calendar.CodeForbiddenFolder, Message: "read-only"}
	svc := &Service{
		Sink:      &fakeSink{err: sinkErr},
		KnownGood: memKnownGood{},
	}

	got, err := svc.Commit(context.Background(), ev, res)
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *RejectedError", err)
	}
	if rej.Code() != calendar.CodeForbiddenFolder {
		t.Errorf("Code = %v", rej.Code())
	}
	if !errors.Is(err, sinkErr) {
		t.Errorf("sink error not wrapped")
	}
	if diff := pretty.Compare(got, ev); diff != "" {
		t.Errorf("returned event is not the known-good one (-got +want):\n%s", diff)
	}
	if diff := pretty.Compare(rej.Event, ev); diff != "" {
		t.Errorf("rejected event diff (-got +want):\n%s", diff)
	}
}

func TestCommitRejectedRestoresRefreshedEvent(t *testing.T) {
	ev, _ := meeting()
	ev.Meeting = calendar.MeetingNone
	good := memKnownGood{}
	sink := &fakeSink{}
	svc := &Service{Sink: sink, KnownGood: good}

	// An earlier move is accepted and snapshotted.
	first, err := calc().Calculate(ev, Move, grid.Cell{Day: 1, Minute: 600})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Commit(context.Background(), ev, first); err != nil {
		t.Fatal(err)
	}

	// The event changes elsewhere and comes back from a refresh.
	refreshed := ev
	refreshed.Start, refreshed.End = at(2, 16, 0), at(2, 17, 0)

	sink.err = &calendar.SinkError{Code: calendar.CodePermissionDenied, Message: "read-only"}
	second, err := calc().Calculate(refreshed, Move, grid.Cell{Day: 3, Minute: 600})
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Commit(context.Background(), refreshed, second)

	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v", err)
	}
	if rej.Code() != calendar.CodePermissionDenied {
		t.Errorf("Code = %v, want permission denied", rej.Code())
	}
	if !got.Start.Equal(refreshed.Start) || !got.End.Equal(refreshed.End) {
		t.Errorf("restored %v - %v, want refreshed %v - %v", got.Start, got.End, refreshed.Start, refreshed.End)
	}
	if stored, _, _ := good.Load(refreshed.Key()); !stored.Start.Equal(refreshed.Start) {
		t.Errorf("snapshot Start = %v, want %v", stored.Start, refreshed.Start)
	}
}

func TestCommitNoOp(t *testing.T) {
	ev, res := meeting()
	res.NoOp = true
	sink := &fakeSink{}
	svc := &Service{Sink: sink}

	got, err := svc.Commit(context.Background(), ev, res)
	if err != nil {
		t.Fatal(err)
	}
	if len(sink.reqs) != 0 {
		t.Errorf("no-op reached the sink")
	}
	if !got.Start.Equal(ev.Start) {
		t.Errorf("no-op moved the event")
	}

	if _, err := (&Service{}).Commit(context.Background(), ev, Result{Start: res.Start, End: res.End}); !errors.Is(err, ErrNoSink) {
		t.Errorf("err = %v, want ErrNoSink", err)
	}
}

func TestCommitOccurrence(t *testing.T) {
	basedate := at(0, 14, 0)
	ev := calendar.Event{ID: "s", Start: at(0, 14, 0), End: at(0, 15, 0), Recurring: true, Basedate: basedate}
	res, err := calc().Calculate(ev, Move, grid.Cell{Day: 1, Minute: 600})
	if err != nil {
		t.Fatal(err)
	}

	sink := &fakeSink{}
	got, err := (&Service{Sink: sink}).Commit(context.Background(), ev, res)
	if err != nil {
		t.Fatal(err)
	}
	req := sink.reqs[0]
	if req.Basedate == nil || !req.Basedate.Equal(basedate) {
		t.Errorf("Basedate = %v, want %v", req.Basedate, basedate)
	}
	if !got.Exception || !got.Basedate.Equal(basedate) {
		t.Errorf("moved occurrence = %+v", got)
	}
}

func TestCommitAsync(t *testing.T) {
	ev, res := meeting()
	ev.Meeting = calendar.MeetingNone

	tests := []struct {
		name      string
		sinkErr   error
		wantStart time.Time
	}{
		{"accepted", nil, res.Start},
		{"rolled back", &calendar.SinkError{Code: calendar.CodeConflict}, ev.Start},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &Service{Sink: &fakeSink{err: tt.sinkErr}}
			outcomes := make(chan Outcome, 1)

			provisional := svc.CommitAsync(context.Background(), ev, res, func(o Outcome) { outcomes <- o })
			if !provisional.Start.Equal(res.Start) {
				t.Errorf("provisional Start = %v, want %v", provisional.Start, res.Start)
			}

			select {
			case o := <-outcomes:
				if (o.Err != nil) != (tt.sinkErr != nil) {
					t.Errorf("Err = %v", o.Err)
				}
				if !o.Event.Start.Equal(tt.wantStart) {
					t.Errorf("outcome Start = %v, want %v", o.Event.Start, tt.wantStart)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("no outcome")
			}
		})
	}
}
