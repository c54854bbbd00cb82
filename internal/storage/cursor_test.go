package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursor_EncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		c    Cursor
	}{
		{
			name: "full position",
			c:    Cursor{UploadDate: "2026-02-15T10:30:00.123456789Z", ID: "550e8400-e29b-41d4-a716-446655440000"},
		},
		{
			name: "upload_date only",
			c:    Cursor{UploadDate: "2026-02-15T10:30:00Z"},
		},
		{
			name: "zero values",
			c:    Cursor{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.c.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := DecodeCursor(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.UploadDate != tt.c.UploadDate {
				t.Errorf("UploadDate: got %q, want %q", decoded.UploadDate, tt.c.UploadDate)
			}
			if decoded.ID != tt.c.ID {
				t.Errorf("ID: got %q, want %q", decoded.ID, tt.c.ID)
			}
		})
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "invalid base64",
			input: "!!!invalid!!!",
		},
		{
			name:  "invalid json",
			input: "bm90IGpzb24=", // not json
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.input)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestCursor_Position(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2026, 2, 15, 10, 30, 0, 42, time.UTC)
	c := Cursor{UploadDate: ts.Format(time.RFC3339Nano), ID: id.String()}

	gotTS, gotID, err := c.position()
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if !gotTS.Equal(ts) {
		t.Errorf("time: got %v, want %v", gotTS, ts)
	}
	if gotID != id {
		t.Errorf("id: got %v, want %v", gotID, id)
	}
}

func TestCursor_PositionInvalid(t *testing.T) {
	bad := []Cursor{
		{UploadDate: "yesterday", ID: uuid.NewString()},
		{UploadDate: "2026-02-15T10:30:00Z", ID: "not-a-uuid"},
	}
	for _, c := range bad {
		if _, _, err := c.position(); err == nil {
			t.Errorf("expected error for %+v", c)
		}
	}
}
