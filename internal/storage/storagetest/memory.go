// Package storagetest provides in-memory stores for tests of packages that
// depend on storage interfaces.
package storagetest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/storage"
)

// Store implements storage.UploadStore and storage.UserStore in memory.
// Set Err to make every call fail with it.
type Store struct {
	mu      sync.Mutex
	uploads map[uuid.UUID]*record.Upload
	users   map[uuid.UUID]*record.User
	now     func() time.Time

	Err error
	// CreateUploadErr fails only CreateUpload for the given status.
	CreateUploadErr map[record.Status]error
}

func New() *Store {
	return &Store{
		uploads:         make(map[uuid.UUID]*record.Upload),
		users:           make(map[uuid.UUID]*record.User),
		now:             time.Now,
		CreateUploadErr: make(map[record.Status]error),
	}
}

// SetClock overrides the time source used for new records.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Uploads returns a snapshot of every stored upload.
func (s *Store) Uploads() []record.Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Upload, 0, len(s.uploads))
	for _, u := range s.uploads {
		out = append(out, *u)
	}
	return out
}

func (s *Store) CreateUpload(_ context.Context, n record.NewUpload) (*record.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if err := s.CreateUploadErr[n.Status]; err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &record.Upload{
		ID:          uuid.New(),
		OwnerID:     n.OwnerID,
		FileName:    n.FileName,
		FilePath:    n.FilePath,
		FileSize:    n.FileSize,
		ContentType: n.ContentType,
		Headers:     n.Grid.Headers,
		Rows:        n.Grid.Rows,
		RowCount:    len(n.Grid.Rows),
		Status:      n.Status,
		UploadDate:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.uploads[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *Store) GetUpload(_ context.Context, id uuid.UUID) (*record.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.uploads[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) sortedSummaries(keep func(*record.Upload) bool) []record.Summary {
	var ups []*record.Upload
	for _, u := range s.uploads {
		if keep(u) {
			ups = append(ups, u)
		}
	}
	slices.SortFunc(ups, func(a, b *record.Upload) int {
		if c := b.UploadDate.Compare(a.UploadDate); c != 0 {
			return c
		}
		return slices.Compare(b.ID[:], a.ID[:])
	})
	out := make([]record.Summary, 0, len(ups))
	for _, u := range ups {
		sm := record.Summary{
			ID:         u.ID,
			FileName:   u.FileName,
			FileSize:   u.FileSize,
			RowCount:   u.RowCount,
			Status:     u.Status,
			UploadDate: u.UploadDate,
			Owner:      record.Owner{ID: u.OwnerID},
		}
		if owner, ok := s.users[u.OwnerID]; ok {
			sm.Owner.Username = owner.Username
			sm.Owner.Email = owner.Email
		}
		out = append(out, sm)
	}
	return out
}

// ListUploads pages by position; the cursor is the id of the last item
// on the previous page.
func (s *Store) ListUploads(_ context.Context, f storage.ListFilter, cursor string, limit int) (*storage.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	all := s.sortedSummaries(func(u *record.Upload) bool {
		return (f.Status == "" || u.Status == f.Status) && (f.OwnerID == uuid.Nil || u.OwnerID == f.OwnerID)
	})
	start := 0
	if cursor != "" {
		start = -1
		for i, sm := range all {
			if sm.ID.String() == cursor {
				start = i + 1
			}
		}
		if start < 0 {
			return nil, storage.ErrInvalidCursor
		}
	}
	if limit <= 0 {
		limit = 50
	}
	end := min(start+limit, len(all))
	page := &storage.Page{Items: all[start:end]}
	if end < len(all) {
		page.HasMore = true
		page.NextCursor = all[end-1].ID.String()
	}
	return page, nil
}

func (s *Store) ListFailedUploads(_ context.Context) ([]record.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.sortedSummaries(func(u *record.Upload) bool { return u.Status == record.StatusFailed }), nil
}

func (s *Store) SetUploadStatus(_ context.Context, id uuid.UUID, status record.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.uploads[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) DeleteUpload(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.uploads[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.uploads, id)
	return nil
}

func (s *Store) UploadTotals(_ context.Context) (record.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return record.Totals{}, s.Err
	}
	var t record.Totals
	for _, u := range s.uploads {
		t.Files++
		t.Rows += int64(u.RowCount)
		if t.LastUpload == nil || u.UploadDate.After(*t.LastUpload) {
			d := u.UploadDate
			t.LastUpload = &d
		}
	}
	return t, nil
}

func (s *Store) UploadsByBucket(_ context.Context, b record.Bucket) ([]record.BucketCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	counts := map[string]int64{}
	for _, u := range s.uploads {
		counts[b.Label(u.UploadDate)]++
	}
	out := make([]record.BucketCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, record.BucketCount{Label: label, Uploads: n})
	}
	slices.SortFunc(out, func(a, b record.BucketCount) int {
		switch {
		case a.Label < b.Label:
			return -1
		case a.Label > b.Label:
			return 1
		}
		return 0
	})
	return out, nil
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, n record.NewUser) (*record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if u.Username == n.Username {
			return nil, storage.ErrConflict
		}
	}
	role := n.Role
	if role == "" {
		role = record.RoleUser
	}
	now := s.now().UTC()
	u := &record.User{
		ID:           uuid.New(),
		Username:     n.Username,
		Email:        n.Email,
		PasswordHash: n.PasswordHash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]record.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b record.User) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) ToggleUserActive(_ context.Context, id uuid.UUID) (*record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u.Active = !u.Active
	u.UpdatedAt = s.now().UTC()
	cp := *u
	return &cp, nil
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return int64(len(s.users)), nil
}

var (
	_ storage.UploadStore = (*Store)(nil)
	_ storage.UserStore   = (*Store)(nil)
)
