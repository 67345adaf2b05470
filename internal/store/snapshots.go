// Package store provides local persistence: known-good event snapshots and
// a folder of ICS files that can be read and rescheduled.
package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"github.com/cpuguy83/calgrid/internal/calendar"
)

// snapshot is the on-disk form of a known-good event.
type snapshot struct {
	Event calendar.Event `json:"event"`
	Saved time.Time      `json:"saved"`
}

// Snapshots keeps the last state of each event that a sink accepted, so a
// rejected reschedule can restore it.
type Snapshots struct {
	d   *diskv.Diskv
	now func() time.Time
}

// NewSnapshots opens a snapshot store rooted at dir.
func NewSnapshots(dir string) *Snapshots {
	return &Snapshots{
		d: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    func(string) []string { return nil },
			CacheSizeMax: 256 * 1024,
		}),
		now: time.Now,
	}
}

// Event keys may hold characters that are not valid in file names.
func fileKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Save records ev as known-good.
func (s *Snapshots) Save(ev calendar.Event) error {
	data, err := json.Marshal(snapshot{Event: ev, Saved: s.now()})
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", ev.Key(), err)
	}
	if err := s.d.Write(fileKey(ev.Key()), data); err != nil {
		return fmt.Errorf("write snapshot %s: %w", ev.Key(), err)
	}
	return nil
}

// Load returns the known-good state for key. ok is false when none was saved.
func (s *Snapshots) Load(key string) (ev calendar.Event, ok bool, err error) {
	data, err := s.d.Read(fileKey(key))
	if errors.Is(err, fs.ErrNotExist) {
		return calendar.Event{}, false, nil
	}
	if err != nil {
		return calendar.Event{}, false, fmt.Errorf("read snapshot %s: %w", key, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return calendar.Event{}, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap.Event, true, nil
}

// Forget drops the snapshot for key.
func (s *Snapshots) Forget(key string) error {
	err := s.d.Erase(fileKey(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("erase snapshot %s: %w", key, err)
	}
	return nil
}

// Reconcile drops the snapshots of events a source has just supplied. The
// fresh state supersedes them. It returns how many it removed.
func (s *Snapshots) Reconcile(events []calendar.Event) (int, error) {
	fresh := make(map[string]bool, len(events))
	for _, ev := range events {
		fresh[fileKey(ev.Key())] = true
	}

	var stale []string
	for key := range s.d.Keys(nil) {
		if fresh[key] {
			stale = append(stale, key)
		}
	}

	for i, key := range stale {
		if err := s.d.Erase(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return i, fmt.Errorf("erase snapshot: %w", err)
		}
	}
	return len(stale), nil
}

// Prune drops snapshots saved before cutoff and returns how many it removed.
func (s *Snapshots) Prune(cutoff time.Time) (int, error) {
	var keys []string
	for key := range s.d.Keys(nil) {
		keys = append(keys, key)
	}

	var n int
	for _, key := range keys {
		data, err := s.d.Read(key)
		if err != nil {
			continue
		}
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err == nil && !snap.Saved.Before(cutoff) {
			continue
		}
		if err := s.d.Erase(key); err != nil {
			return n, fmt.Errorf("erase snapshot: %w", err)
		}
		n++
	}
	return n, nil
}
