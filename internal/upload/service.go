// Package upload turns uploaded spreadsheets into stored records and serves
// them back to their owners and to administrators.
package upload

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ryanbastic/go-sheetviz/internal/artifact"
	"github.com/ryanbastic/go-sheetviz/internal/sheet"
	"github.com/ryanbastic/go-sheetviz/internal/storage"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
)

// Publisher receives upload lifecycle events. *trigger.Notifier satisfies it.
type Publisher interface {
	Notify(trigger.UploadEventParams)
}

type cachedGrid struct {
	owner uuid.UUID
	grid  sheet.Grid
}

// Service implements ingestion, retrieval and the admin operations on
// upload records.
type Service struct {
	uploads   storage.UploadStore
	users     storage.UserStore
	artifacts artifact.Store
	events    Publisher
	cache     *lru.Cache[uuid.UUID, cachedGrid]
	logger    *slog.Logger
	now       func() time.Time

	// cacheMu orders cache fills against deletes. evictions counts
	// deletes; a fill started before a delete is dropped.
	cacheMu   sync.Mutex
	evictions uint64
}

// Options configures a Service. A CacheSize of zero disables the chart cache.
// Events may be nil.
type Options struct {
	CacheSize int
	Events    Publisher
}

func NewService(uploads storage.UploadStore, users storage.UserStore, artifacts artifact.Store, logger *slog.Logger, opts Options) (*Service, error) {
	s := &Service{
		uploads:   uploads,
		users:     users,
		artifacts: artifacts,
		events:    opts.Events,
		logger:    logger,
		now:       time.Now,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[uuid.UUID, cachedGrid](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create chart cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Service) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.evictions
}

// fillCache stores entry unless a delete happened since gen was read.
func (s *Service) fillCache(id uuid.UUID, entry cachedGrid, gen uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.evictions != gen {
		return
	}
	s.cache.Add(id, entry)
}

func (s *Service) evict(id uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.evictions++
	s.cache.Remove(id)
}

func (s *Service) publish(e trigger.Event, id, owner uuid.UUID, fileName string, rows int, status string) {
	if s.events == nil {
		return
	}
	s.events.Notify(trigger.UploadEventParams{
		Event:      e,
		UploadID:   id.String(),
		OwnerID:    owner.String(),
		FileName:   fileName,
		RowCount:   rows,
		Status:     status,
		OccurredAt: s.now().UTC(),
	})
}

// storeErr maps a store failure to the service taxonomy.
func storeErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
