// Package artifact keeps the original bytes of uploaded files.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Open when no artifact exists under the key.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidKey is returned for keys that are empty, absolute or contain
	// path traversal.
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Store persists artifacts under opaque keys. Delete of a missing key succeeds.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh key of the form <owner>/<uuid><ext>. ext is taken
// from fileName and lowercased; unusual extensions are dropped.
func NewKey(owner uuid.UUID, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, `\`, "/"))))
	if len(ext) > 8 || strings.ContainsAny(ext, " /\\") {
		ext = ""
	}
	return owner.String() + "/" + uuid.NewString() + ext
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
