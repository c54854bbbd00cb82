package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cursor is an opaque keyset position for upload listings.
type Cursor struct {
	// UploadDate of the last item on the previous page (RFC 3339, nanoseconds).
	UploadDate string `json:"upload_date,omitempty"`
	// ID of the last item on the previous page; breaks ties on equal dates.
	ID string `json:"id,omitempty"`
}

// Encode serializes the cursor to a base64-encoded string.
func (c *Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a base64-encoded cursor string.
func DecodeCursor(s string) (*Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cursor: %w", err)
	}
	return &c, nil
}

// position returns the typed keyset values held by the cursor.
func (c *Cursor) position() (time.Time, uuid.UUID, error) {
	ts, err := time.Parse(time.RFC3339Nano, c.UploadDate)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("invalid upload_date cursor: %w", err)
	}
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("invalid id cursor: %w", err)
	}
	return ts, id, nil
}
