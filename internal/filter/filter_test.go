package filter

import (
	"testing"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/config"
)

func TestFilterApply(t *testing.T) {
	events := []calendar.Event{
		{ID: "1", Summary: "Standup", Label: "Work", Source: "work", Folder: "Calendar"},
		{ID: "2", Summary: "Lunch", BusyStatus: calendar.BusyStatusFree, Source: "home"},
		{ID: "3", Summary: "Doctor", Private: true, Organizer: "clinic@example.com", Source: "home"},
		{ID: "4", Summary: "1:1 with Sam", Folder: "Shared", Source: "work"},
	}

	tests := []struct {
		name string
		cfg  config.FilterConfig
		want []string
	}{
		{
			name: "no rules",
			want: []string{"1", "2", "3", "4"},
		},
		{
			name: "title contains, case insensitive",
			cfg: config.FilterConfig{Rules: []config.FilterRule{
				{Field: "title", Contains: "STAND", CaseInsensitive: true},
			}},
			want: []string{"1"},
		},
		{
			name: "busy exact",
			cfg: config.FilterConfig{Rules: []config.FilterRule{
				{Field: "busy", Exact: "busy"},
			}},
			want: []string{"1", "3", "4"},
		},
		{
			name: "private or label",
			cfg: config.FilterConfig{Mode: "or", Rules: []config.FilterRule{
				{Field: "private", Exact: "true"},
				{Field: "label", Exact: "Work"},
			}},
			want: []string{"1", "3"},
		},
		{
			name: "and mode",
			cfg: config.FilterConfig{Mode: "and", Rules: []config.FilterRule{
				{Field: "source", Exact: "work"},
				{Field: "folder", Prefix: "Sha"},
			}},
			want: []string{"4"},
		},
		{
			name: "regex and suffix",
			cfg: config.FilterConfig{Rules: []config.FilterRule{
				{Field: "summary", Regex: `^\d+:\d+`},
				{Field: "organizer", Suffix: "@example.com"},
			}},
			want: []string{"3", "4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			var got []string
			for _, ev := range f.Apply(events) {
				got = append(got, ev.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestFilterNewErrors(t *testing.T) {
	tests := []struct {
		name string
		rule config.FilterRule
	}{
		{"no pattern", config.FilterRule{Field: "title"}},
		{"bad regex", config.FilterRule{Field: "title", Regex: "("}},
		{"unknown field", config.FilterRule{Field: "description", Contains: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(config.FilterConfig{Rules: []config.FilterRule{tt.rule}}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
