package storage

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeExpense(t *testing.T) {
	index := map[string]int{
		"id": 0, "title": 1, "amount": 2, "category": 3, "date": 4, "description": 5, "created_at": 6,
	}
	valid := func() []any {
		return []any{int64(7), "Lunch", 12.5, "Food", "2025-01-02", nil, "2025-01-02 12:00:00"}
	}

	tests := []struct {
		name    string
		mutate  func(v []any)
		column  string
		wantErr bool
	}{
		{name: "valid row", mutate: func([]any) {}},
		{name: "amount stored as text", mutate: func(v []any) { v[2] = "12.50" }},
		{name: "amount stored as integer", mutate: func(v []any) { v[2] = int64(12) }},
		{name: "title as bytes", mutate: func(v []any) { v[1] = []byte("Lunch") }},
		{name: "rfc3339 created_at", mutate: func(v []any) { v[6] = "2025-01-02T12:00:00Z" }},
		{name: "null created_at", mutate: func(v []any) { v[6] = nil }},
		{name: "non-numeric amount", mutate: func(v []any) { v[2] = "twelve" }, column: "amount", wantErr: true},
		{name: "null title", mutate: func(v []any) { v[1] = nil }, column: "title", wantErr: true},
		{name: "id as text", mutate: func(v []any) { v[0] = "seven" }, column: "id", wantErr: true},
		{name: "bad date", mutate: func(v []any) { v[4] = "02/01/2025" }, column: "date", wantErr: true},
		{name: "bad created_at", mutate: func(v []any) { v[6] = "yesterday" }, column: "created_at", wantErr: true},
		{name: "category as float", mutate: func(v []any) { v[3] = 1.5 }, column: "category", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid()
			tt.mutate(v)
			e, err := decodeExpense(index, v)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if e.ID != 7 || e.Title != "Lunch" || e.Category != "Food" || e.Date.String() != "2025-01-02" {
					t.Fatalf("decoded wrong expense: %+v", e)
				}
				return
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if de.Column != tt.column {
				t.Fatalf("column = %q, want %q", de.Column, tt.column)
			}
		})
	}
}

func TestDecodeExpenseNullDescriptionIsEmpty(t *testing.T) {
	index := map[string]int{"id": 0, "title": 1, "amount": 2, "category": 3, "date": 4, "description": 5}
	e, err := decodeExpense(index, []any{int64(1), "a", 1.0, "b", "2025-01-01", nil})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Description != "" || !e.CreatedAt.IsZero() {
		t.Fatalf("unexpected description/created_at: %+v", e)
	}
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2024, 7, 9, 8, 7, 6, 0, time.Local)
	got, err := parseTimestamp("created_at", formatTimestamp(ts))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(ts) {
		t.Fatalf("got %v, want %v", got, ts)
	}
}
