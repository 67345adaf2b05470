// Package notify provides desktop notifications via D-Bus: reports of
// rejected reschedules and the prompt asking whether attendees should be
// told about a moved meeting.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	notifyInterface = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
)

// Notifier sends desktop notifications via D-Bus.
type Notifier struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string

	mu       sync.Mutex
	notified map[string]time.Time // Track notified event keys to avoid duplicates
}

// New creates a new notifier.
func New(appName string) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	return &Notifier{
		conn:     conn,
		obj:      conn.Object(notifyInterface, notifyPath),
		appName:  appName,
		notified: make(map[string]time.Time),
	}, nil
}

// Close closes the D-Bus connection.
func (n *Notifier) Close() error {
	return n.conn.Close()
}

// Notification represents a desktop notification.
type Notification struct {
	Summary string
	Body    string
	Icon    string
	Timeout time.Duration // 0 = default, -1 = persistent
	Actions []Action
	Urgency Urgency

	// For tracking
	EventKey string
}

// Action represents a notification action button.
type Action struct {
	Key   string
	Label string
}

// Urgency levels for notifications.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Send sends a notification and returns the notification ID.
func (n *Notifier) Send(notif Notification) (uint32, error) {
	// Check if we already notified for this event recently
	if notif.EventKey != "" {
		n.mu.Lock()
		if lastNotified, ok := n.notified[notif.EventKey]; ok {
			// Don't re-notify within 1 minute
			if time.Since(lastNotified) < time.Minute {
				n.mu.Unlock()
				return 0, nil
			}
		}
		n.notified[notif.EventKey] = time.Now()
		n.mu.Unlock()
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(notif.Urgency)),
	}

	icon := notif.Icon
	if icon == "" {
		icon = "x-office-calendar"
	}

	call := n.obj.Call(
		notifyInterface+".Notify",
		0,
		n.appName,                     // app_name
		uint32(0),                     // replaces_id (0 = new notification)
		icon,                          // app_icon
		notif.Summary,                 // summary
		notif.Body,                    // body
		flattenActions(notif.Actions), // actions
		hints,                         // hints
		expireTimeout(notif.Timeout),  // expire_timeout
	)

	if call.Err != nil {
		return 0, fmt.Errorf("send notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("get notification id: %w", err)
	}

	slog.Debug("sent notification", "id", id, "summary", notif.Summary)
	return id, nil
}

// Dismiss closes a notification.
func (n *Notifier) Dismiss(id uint32) error {
	if call := n.obj.Call(notifyInterface+".CloseNotification", 0, id); call.Err != nil {
		return fmt.Errorf("close notification %d: %w", id, call.Err)
	}
	return nil
}

// WatchActions listens for notification action invocations.
// The callback receives the notification ID and action key. A notification
// closed without an action is reported with an empty key.
func (n *Notifier) WatchActions(callback func(id uint32, actionKey string)) error {
	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		if err := n.conn.AddMatchSignal(
			dbus.WithMatchInterface(notifyInterface),
			dbus.WithMatchMember(member),
		); err != nil {
			return fmt.Errorf("add match signal: %w", err)
		}
	}

	ch := make(chan *dbus.Signal, 10)
	n.conn.Signal(ch)

	go func() {
		for sig := range ch {
			if id, key, ok := parseSignal(sig); ok {
				callback(id, key)
			}
		}
	}()

	return nil
}

func parseSignal(sig *dbus.Signal) (uint32, string, bool) {
	if len(sig.Body) < 2 {
		return 0, "", false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return 0, "", false
	}
	switch sig.Name {
	case notifyInterface + ".ActionInvoked":
		key, ok := sig.Body[1].(string)
		return id, key, ok
	case notifyInterface + ".NotificationClosed":
		return id, "", true
	}
	return 0, "", false
}

// flattenActions builds the D-Bus actions array: [key1, label1, key2, label2, ...]
func flattenActions(actions []Action) []string {
	var out []string
	for _, a := range actions {
		out = append(out, a.Key, a.Label)
	}
	return out
}

// expireTimeout converts a timeout to milliseconds: -1 is the server
// default and 0 never expires.
func expireTimeout(d time.Duration) int32 {
	switch {
	case d > 0:
		return int32(d.Milliseconds())
	case d < 0:
		return 0
	default:
		return -1
	}
}

// CleanupOldNotifications removes tracking entries older than maxAge.
func (n *Notifier) CleanupOldNotifications(maxAge time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, t := range n.notified {
		if t.Before(cutoff) {
			delete(n.notified, key)
		}
	}
}
