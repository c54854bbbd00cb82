package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/artifact"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/storage/storagetest"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesCSV = "region,units\nnorth,12\nsouth,\n"

type recordingPublisher struct {
	mu     sync.Mutex
	events []trigger.UploadEventParams
}

func (p *recordingPublisher) Notify(e trigger.UploadEventParams) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []trigger.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]trigger.Event, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *storagetest.Store
	events *recordingPublisher
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	artifacts, err := artifact.NewLocalStore(dir)
	require.NoError(t, err)

	store := storagetest.New()
	events := &recordingPublisher{}
	svc, err := NewService(store, store, artifacts, slog.New(slog.DiscardHandler), Options{
		CacheSize: 8,
		Events:    events,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, events: events, dir: dir}
}

func (f *fixture) ingest(t *testing.T, owner uuid.UUID) uuid.UUID {
	t.Helper()
	id, err := f.svc.Ingest(context.Background(), IngestRequest{
		OwnerID:  owner,
		FileName: "sales.csv",
		Data:     []byte(salesCSV),
	})
	require.NoError(t, err)
	return id
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func owner(id uuid.UUID) *auth.Identity {
	return &auth.Identity{UserID: id, Username: "owner", Role: record.RoleUser}
}

func TestIngest_StoresGridAndArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	id := f.ingest(t, user)

	grid, err := f.svc.ChartData(ctx, id, owner(user))
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "units"}, grid.Headers)
	require.Len(t, grid.Rows, 2)
	assert.Equal(t, "north", grid.Rows[0][0].Text())
	assert.True(t, grid.Rows[1][1].IsNull())

	dl, err := f.svc.OpenArtifact(ctx, id)
	require.NoError(t, err)
	defer dl.Body.Close()
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, salesCSV, string(body))
	assert.Equal(t, "sales.csv", dl.FileName)
	assert.Equal(t, int64(len(salesCSV)), dl.Size)

	assert.Equal(t, []trigger.Event{trigger.EventUploadProcessed}, f.events.kinds())
}

func TestIngest_DecodeErrorPersistsNothing(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"empty", IngestRequest{OwnerID: uuid.New(), FileName: "sales.csv"}},
		{"unsupported", IngestRequest{OwnerID: uuid.New(), FileName: "notes.txt", Data: []byte("hello")}},
		{"corrupt xlsx", IngestRequest{OwnerID: uuid.New(), FileName: "book.xlsx", Data: []byte("not a zip")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ingest(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}

	assert.Empty(t, f.store.Uploads())
	assert.Zero(t, countFiles(t, f.dir))
	assert.Empty(t, f.events.kinds())
}

func TestIngest_PersistFailureLeavesFailedStub(t *testing.T) {
	f := newFixture(t)
	f.store.CreateUploadErr[record.StatusProcessed] = errors.New("disk full")

	_, err := f.svc.Ingest(context.Background(), IngestRequest{
		OwnerID:  uuid.New(),
		FileName: "sales.csv",
		Data:     []byte(salesCSV),
	})
	require.ErrorIs(t, err, ErrStorage)

	stored := f.store.Uploads()
	require.Len(t, stored, 1)
	assert.Equal(t, record.StatusFailed, stored[0].Status)
	assert.Equal(t, "sales.csv", stored[0].FileName)
	assert.Empty(t, stored[0].FilePath)
	assert.Zero(t, stored[0].RowCount)

	assert.Zero(t, countFiles(t, f.dir), "orphaned artifact should be removed")
	assert.Equal(t, []trigger.Event{trigger.EventUploadFailed}, f.events.kinds())

	failed, err := f.svc.FailedUploads(context.Background())
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestChartData_Access(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	id := f.ingest(t, user)

	_, err := f.svc.ChartData(ctx, id, owner(uuid.New()))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.ChartData(ctx, id, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	admin := &auth.Identity{UserID: uuid.New(), Role: record.RoleAdmin}
	grid, err := f.svc.ChartData(ctx, id, admin)
	require.NoError(t, err)
	assert.Len(t, grid.Rows, 2)

	_, err = f.svc.ChartData(ctx, uuid.New(), owner(user))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChartData_CacheInvalidatedOnDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	id := f.ingest(t, user)

	_, err := f.svc.ChartData(ctx, id, owner(user))
	require.NoError(t, err)

	// Served from cache while the store is down.
	f.store.Err = errors.New("connection refused")
	_, err = f.svc.ChartData(ctx, id, owner(user))
	require.NoError(t, err)
	f.store.Err = nil

	require.NoError(t, f.svc.Delete(ctx, id))
	_, err = f.svc.ChartData(ctx, id, owner(user))
	assert.ErrorIs(t, err, ErrNotFound)
}

// racingStore runs afterGet once, right after a GetUpload returns.
type racingStore struct {
	*storagetest.Store
	afterGet func()
}

func (r *racingStore) GetUpload(ctx context.Context, id uuid.UUID) (*record.Upload, error) {
	rec, err := r.Store.GetUpload(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return rec, err
}

func TestChartData_DeleteDuringFillIsNotCached(t *testing.T) {
	ctx := context.Background()
	artifacts, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := &racingStore{Store: storagetest.New()}
	svc, err := NewService(store, store, artifacts, slog.New(slog.DiscardHandler), Options{CacheSize: 8})
	require.NoError(t, err)

	user := uuid.New()
	id, err := svc.Ingest(ctx, IngestRequest{OwnerID: user, FileName: "sales.csv", Data: []byte(salesCSV)})
	require.NoError(t, err)

	store.afterGet = func() {
		require.NoError(t, svc.Delete(ctx, id))
	}
	_, err = svc.ChartData(ctx, id, owner(user))
	require.NoError(t, err)

	_, err = svc.ChartData(ctx, id, owner(user))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChartData_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Err = errors.New("connection refused")

	_, err := f.svc.ChartData(context.Background(), uuid.New(), owner(uuid.New()))
	assert.ErrorIs(t, err, ErrStorage)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.ingest(t, uuid.New())
	require.Equal(t, 1, countFiles(t, f.dir))

	require.NoError(t, f.svc.Delete(ctx, id))
	assert.Zero(t, countFiles(t, f.dir))
	assert.Empty(t, f.store.Uploads())

	assert.ErrorIs(t, f.svc.Delete(ctx, id), ErrNotFound)
	assert.Equal(t, []trigger.Event{trigger.EventUploadProcessed, trigger.EventUploadDeleted}, f.events.kinds())
}

func TestDelete_FailedStubWithoutArtifact(t *testing.T) {
	f := newFixture(t)
	f.store.CreateUploadErr[record.StatusProcessed] = errors.New("disk full")
	_, err := f.svc.Ingest(context.Background(), IngestRequest{OwnerID: uuid.New(), FileName: "a.csv", Data: []byte("x\n1\n")})
	require.Error(t, err)

	stub := f.store.Uploads()[0]
	require.NoError(t, f.svc.Delete(context.Background(), stub.ID))

	_, err = f.svc.OpenArtifact(context.Background(), stub.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenArtifact_MissingFile(t *testing.T) {
	f := newFixture(t)
	id := f.ingest(t, uuid.New())
	rec := f.store.Uploads()[0]
	require.NoError(t, artifactRemove(f.dir, rec.FilePath))

	_, err := f.svc.OpenArtifact(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func artifactRemove(dir, key string) error {
	s, err := artifact.NewLocalStore(dir)
	if err != nil {
		return err
	}
	return s.Delete(context.Background(), key)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.ingest(t, uuid.New())

	st, err := f.svc.SetStatus(ctx, id, "pending")
	require.NoError(t, err)
	assert.Equal(t, record.StatusPending, st)
	assert.Equal(t, record.StatusPending, f.store.Uploads()[0].Status)

	_, err = f.svc.SetStatus(ctx, id, "archived")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SetStatus(ctx, uuid.New(), "failed")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	f.store.SetClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Hour)
	})
	user := uuid.New()
	for range 3 {
		f.ingest(t, user)
	}
	f.ingest(t, uuid.New())

	page, err := f.svc.ListUploads(ctx, ListOptions{OwnerID: user, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.True(t, page.Items[0].UploadDate.After(page.Items[1].UploadDate))

	next, err := f.svc.ListUploads(ctx, ListOptions{OwnerID: user, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.Items, 1)
	assert.False(t, next.HasMore)

	all, err := f.svc.ListUploads(ctx, ListOptions{Status: "processed"})
	require.NoError(t, err)
	assert.Len(t, all.Items, 4)

	_, err = f.svc.ListUploads(ctx, ListOptions{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ListUploads(ctx, ListOptions{Cursor: "garbage"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDashboardStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalUsers)
	assert.Zero(t, stats.TotalFilesUploaded)
	assert.Zero(t, stats.TotalRowsAnalyzed)
	assert.Nil(t, stats.LastUploadTimestamp)

	u, err := f.store.CreateUser(ctx, record.NewUser{Username: "alice", Email: "alice@example.com", Role: record.RoleUser})
	require.NoError(t, err)
	f.ingest(t, u.ID)
	f.ingest(t, u.ID)

	stats, err = f.svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.TotalFilesUploaded)
	assert.Equal(t, int64(4), stats.TotalRowsAnalyzed)
	assert.NotNil(t, stats.LastUploadTimestamp)
}

func TestUploadStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetClock(func() time.Time { return time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC) })
	f.ingest(t, uuid.New())

	f.ingest(t, uuid.New())
	f.ingest(t, uuid.New())

	counts, err := f.svc.UploadStats(ctx, "daily")
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, record.BucketCount{Label: "2024-01-31", Uploads: 3}, counts[0])

	counts, err = f.svc.UploadStats(ctx, "weekly")
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, record.BucketCount{Label: "2024-W05", Uploads: 3}, counts[0])

	_, err = f.svc.UploadStats(ctx, "hourly")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.store.CreateUser(ctx, record.NewUser{Username: "alice", Email: "alice@example.com", Role: record.RoleUser})
	require.NoError(t, err)
	id := f.ingest(t, u.ID)

	d, err := f.svc.Analytics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", d.Owner.Username)
	assert.Equal(t, record.StatusProcessed, d.Status)
	assert.Equal(t, 2, d.RowCount)
	assert.Len(t, d.Rows, 2)

	_, err = f.svc.Analytics(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	id := f.ingest(t, uuid.New())

	data, name, err := f.svc.ExportCSV(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "sales.csv.csv", name)
	assert.Equal(t, salesCSV, string(data))
}

func TestExportPDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.ingest(t, uuid.New())

	data, name, err := f.svc.ExportPDF(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sales.csv.pdf", name)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))

	_, _, err = f.svc.ExportPDF(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportPDF_WideAndLongGrid(t *testing.T) {
	var b strings.Builder
	for c := 0; c < 40; c++ {
		if c > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "column-with-a-long-name-%d", c)
	}
	b.WriteByte('\n')
	for r := 0; r < 120; r++ {
		for c := 0; c < 40; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", r*c)
		}
		b.WriteByte('\n')
	}

	f := newFixture(t)
	id, err := f.svc.Ingest(context.Background(), IngestRequest{OwnerID: uuid.New(), FileName: "wide.csv", Data: []byte(b.String())})
	require.NoError(t, err)

	data, _, err := f.svc.ExportPDF(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
}

func TestFailedUploadsCSV(t *testing.T) {
	f := newFixture(t)
	f.store.SetClock(func() time.Time { return time.Date(2024, time.March, 2, 8, 30, 0, 0, time.UTC) })
	f.store.CreateUploadErr[record.StatusProcessed] = errors.New("disk full")
	_, err := f.svc.Ingest(context.Background(), IngestRequest{OwnerID: uuid.New(), FileName: "q1.csv", Data: []byte(salesCSV)})
	require.Error(t, err)

	data, err := f.svc.FailedUploadsCSV(context.Background())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "File Name,Upload Date,Status", lines[0])
	assert.Equal(t, "q1.csv,2024-03-02T08:30:00Z,failed", lines[1])
}

func TestToggleUserActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.store.CreateUser(ctx, record.NewUser{Username: "bob", Email: "bob@example.com", Role: record.RoleUser})
	require.NoError(t, err)
	require.True(t, u.Active)

	got, err := f.svc.ToggleUserActive(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = f.svc.ToggleUserActive(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
