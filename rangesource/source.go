package rangesource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abczzz13/cfrealip"
)

// DefaultInterval is how often Run refreshes when WithInterval is not given.
const DefaultInterval = 24 * time.Hour

// RangeFetcher retrieves a complete range set from a remote authority.
// *Fetcher is the standard implementation.
type RangeFetcher interface {
	Fetch(ctx context.Context) (*cfrealip.RangeSet, error)
}

// Source owns the published range set and keeps it current.
//
// Every successful load, refresh or watched update replaces the published set
// in a single atomic swap; failures leave the previous set in effect. Source
// implements cfrealip.RangeProvider and is safe for concurrent use.
type Source struct {
	store     *cfrealip.RangeStore
	fetcher   RangeFetcher
	snapshots SnapshotStore
	logger    Logger
	metrics   Metrics
	interval  time.Duration

	initial    *cfrealip.RangeSet
	hasInitial bool

	refreshMu sync.Mutex
}

// Option configures a Source.
type Option func(*Source) error

// WithFetcher sets the remote fetcher. Without it NewSource uses
// NewFetcher() with the Cloudflare endpoints.
func WithFetcher(fetcher RangeFetcher) Option {
	return func(s *Source) error {
		if fetcher == nil {
			return errors.New("fetcher cannot be nil")
		}
		s.fetcher = fetcher
		return nil
	}
}

// WithSnapshotStore sets where range sets are loaded from and persisted to.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *Source) error {
		if store == nil {
			return errors.New("snapshot store cannot be nil")
		}
		s.snapshots = store
		return nil
	}
}

// WithInitial sets the range set published before the first load or
// refresh. It defaults to cfrealip.Default().
func WithInitial(set *cfrealip.RangeSet) Option {
	return func(s *Source) error {
		s.initial = set
		s.hasInitial = true
		return nil
	}
}

// WithRangeStore publishes into an existing store instead of a private one.
// The store's current set is kept unless WithInitial is also given.
func WithRangeStore(store *cfrealip.RangeStore) Option {
	return func(s *Source) error {
		if store == nil {
			return errors.New("range store cannot be nil")
		}
		s.store = store
		return nil
	}
}

// WithLogger sets the logger for refresh and persistence events.
func WithLogger(logger Logger) Option {
	return func(s *Source) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the refresh metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(s *Source) error {
		if metrics == nil {
			return errors.New("metrics cannot be nil")
		}
		s.metrics = metrics
		return nil
	}
}

// WithInterval sets the refresh period used by Run.
func WithInterval(interval time.Duration) Option {
	return func(s *Source) error {
		if interval <= 0 {
			return fmt.Errorf("refresh interval must be positive, got %s", interval)
		}
		s.interval = interval
		return nil
	}
}

// NewSource creates a Source publishing cfrealip.Default() until the first
// successful load or refresh.
func NewSource(opts ...Option) (*Source, error) {
	s := &Source{
		store:    cfrealip.NewRangeStore(cfrealip.Default()),
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		interval: DefaultInterval,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("invalid source configuration: %w", err)
		}
	}

	if s.hasInitial {
		s.store.Store(s.initial)
	}

	if s.fetcher == nil {
		fetcher, err := NewFetcher()
		if err != nil {
			return nil, err
		}
		s.fetcher = fetcher
	}

	s.recordCounts(s.store.Load())
	return s, nil
}

// Ranges implements cfrealip.RangeProvider.
func (s *Source) Ranges() *cfrealip.RangeSet {
	return s.store.Load()
}

// Store returns the store the source publishes into.
func (s *Source) Store() *cfrealip.RangeStore {
	return s.store
}

// Load publishes the snapshot held by the SnapshotStore.
//
// On any error, including an empty snapshot, the current set stays in effect.
func (s *Source) Load(ctx context.Context) (*cfrealip.RangeSet, error) {
	if s.snapshots == nil {
		return nil, ErrNoSnapshotStore
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	set, err := s.snapshots.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "range snapshot not loaded, keeping current ranges", "err", err)
		return nil, err
	}
	if set.IsEmpty() {
		s.logger.WarnContext(ctx, "range snapshot is empty, keeping current ranges")
		return nil, fmt.Errorf("load range snapshot: %w", ErrEmptyRanges)
	}

	s.publish(ctx, set, "snapshot")
	return set, nil
}

// Refresh fetches the remote lists, publishes the result and persists it.
//
// A fetch failure returns the error and keeps the current set. A persistence
// failure is only logged: the fetched set is already published.
func (s *Source) Refresh(ctx context.Context) (*cfrealip.RangeSet, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	set, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.metrics.RecordRangeRefresh(RefreshFailure)
		s.logger.ErrorContext(ctx, "range refresh failed, keeping current ranges", "err", err)
		return nil, err
	}

	s.publish(ctx, set, "fetch")
	s.metrics.RecordRangeRefresh(RefreshSuccess)

	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, set); err != nil {
			s.logger.WarnContext(ctx, "failed to persist refreshed ranges", "err", err)
		}
	}

	return set, nil
}

// Run refreshes immediately and then once per interval until ctx is done.
func (s *Source) Run(ctx context.Context) {
	_, _ = s.Refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Refresh(ctx)
		}
	}
}

// Watch publishes snapshots written by other processes until ctx is done.
// It requires a SnapshotStore that implements Watcher.
func (s *Source) Watch(ctx context.Context) error {
	if s.snapshots == nil {
		return ErrNoSnapshotStore
	}

	watcher, ok := s.snapshots.(Watcher)
	if !ok {
		return fmt.Errorf("snapshot store %T cannot be watched", s.snapshots)
	}

	return watcher.Watch(ctx, func(_ *cfrealip.RangeSet, err error) {
		if err != nil {
			s.logger.WarnContext(ctx, "ignoring unreadable range snapshot", "err", err)
			return
		}

		// The event may predate a refresh that is still saving, so the
		// snapshot is read again once no refresh is in progress.
		s.refreshMu.Lock()
		defer s.refreshMu.Unlock()

		set, err := s.snapshots.Load(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "ignoring unreadable range snapshot", "err", err)
			return
		}
		if set.IsEmpty() || set.Equal(s.store.Load()) {
			return
		}
		s.publish(ctx, set, "watch")
	})
}

func (s *Source) publish(ctx context.Context, set *cfrealip.RangeSet, origin string) {
	old := s.store.Swap(set)
	s.recordCounts(set)

	s.logger.InfoContext(ctx, "published range set",
		"origin", origin,
		"v4", len(set.V4()),
		"v6", len(set.V6()),
		"changed", !old.Equal(set),
	)
}

func (s *Source) recordCounts(set *cfrealip.RangeSet) {
	s.metrics.SetRangeCount(cfrealip.FamilyV4.String(), len(set.V4()))
	s.metrics.SetRangeCount(cfrealip.FamilyV6.String(), len(set.V6()))
}
