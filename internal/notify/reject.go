package notify

import (
	"errors"
	"fmt"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/reschedule"
)

// Rejection builds the notification telling the user a reschedule of ev
// was refused and the event was put back.
func Rejection(ev calendar.Event, err error) Notification {
	code := calendar.CodeRejected
	var rej *reschedule.RejectedError
	var se *calendar.SinkError
	switch {
	case errors.As(err, &rej):
		code = rej.Code()
	case errors.As(err, &se):
		code = se.Code
	}

	var body string
	switch code {
	case calendar.CodeForbiddenFolder:
		folder := ev.Folder
		if folder == "" {
			folder = ev.Source
		}
		body = fmt.Sprintf("The folder %q does not allow scheduling items.", folder)
	case calendar.CodePermissionDenied:
		body = "You do not have permission to change this event."
	case calendar.CodeConflict:
		body = "The event changed on the server. Showing the latest version."
	default:
		body = err.Error()
	}

	return Notification{
		Summary:  fmt.Sprintf("Could not move %q", ev.Summary),
		Body:     body,
		Icon:     "dialog-warning",
		Urgency:  UrgencyNormal,
		EventKey: ev.Key(),
	}
}

// ReportRejection shows the rejection notification for ev.
func (n *Notifier) ReportRejection(ev calendar.Event, err error) error {
	_, sendErr := n.Send(Rejection(ev, err))
	return sendErr
}
