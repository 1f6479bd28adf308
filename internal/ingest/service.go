// Package ingest runs the fetch → canonicalize → dedup-gate cycle that
// maintains the live storm snapshot.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
	"github.com/couchcryptid/cyclone-track-service/internal/observability"
)

// Source is one upstream track adapter.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.TrackEntry, error)
}

// Gate persists the snapshot and the fingerprint history.
type Gate interface {
	HasFingerprint(ctx context.Context, hash string) (bool, error)
	ReplaceSnapshot(ctx context.Context, entries []domain.TrackEntry, hash string, payload []byte, at time.Time) error
}

// Notifier publishes a change-feed event after a new snapshot is committed.
type Notifier interface {
	NotifyIngest(ctx context.Context, hash string, entries []domain.TrackEntry) error
}

// Service orchestrates one ingest cycle and the periodic loop around it.
// Cycles never run concurrently: Run is called from a single goroutine (or
// serialized by the HTTP trigger), preserving the single-writer discipline
// the check-then-swap gate assumes.
type Service struct {
	sources  []Source
	gate     Gate
	notifier Notifier // optional
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
	gateSem  chan struct{}
}

// New creates the ingest service. Sources are fetched concurrently but
// their output is concatenated in registration order, which fixes
// provenance priority when two sources report the same observation.
// notifier may be nil.
func New(sources []Source, gate Gate, notifier Notifier, clk clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	s := &Service{
		sources:  sources,
		gate:     gate,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		metrics:  metrics,
		gateSem:  make(chan struct{}, 1),
	}
	s.gateSem <- struct{}{}
	return s
}

// CheckReadiness returns nil once at least one ingest cycle has completed.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no ingest cycle has completed yet")
	}
	return nil
}

// Run executes one full ingest cycle. Any source whose index document is
// unreachable aborts the cycle with no snapshot write; a repeated
// fingerprint is the idempotent no-op outcome, not an error.
func (s *Service) Run(ctx context.Context) (domain.IngestResult, error) {
	select {
	case <-s.gateSem:
		defer func() { s.gateSem <- struct{}{} }()
	case <-ctx.Done():
		return domain.IngestResult{}, ctx.Err()
	}

	collected, err := s.fetchAll(ctx)
	if err != nil {
		s.metrics.IngestCycles.WithLabelValues("error").Inc()
		return domain.IngestResult{}, err
	}

	canonical, dropped := domain.Canonicalize(collected)
	if dropped > 0 {
		s.metrics.EntriesDropped.Add(float64(dropped))
		s.logger.Warn("dropped invalid entries during canonicalization", "dropped", dropped)
	}

	hash := domain.Fingerprint(canonical)
	seen, err := s.gate.HasFingerprint(ctx, hash)
	if err != nil {
		s.metrics.IngestCycles.WithLabelValues("error").Inc()
		return domain.IngestResult{}, fmt.Errorf("fingerprint lookup: %w", err)
	}

	result := domain.IngestResult{Fingerprint: hash, IsNew: !seen, Entries: len(canonical)}
	if seen {
		s.metrics.IngestCycles.WithLabelValues("duplicate").Inc()
		s.logger.Info("ingest cycle unchanged", "fingerprint", hash, "entries", len(canonical))
		s.ready.Store(true)
		return result, nil
	}

	payload, err := json.Marshal(canonical)
	if err != nil {
		s.metrics.IngestCycles.WithLabelValues("error").Inc()
		return domain.IngestResult{}, fmt.Errorf("serialize ingest payload: %w", err)
	}
	if err := s.gate.ReplaceSnapshot(ctx, canonical, hash, payload, s.clock.Now()); err != nil {
		s.metrics.IngestCycles.WithLabelValues("error").Inc()
		return domain.IngestResult{}, fmt.Errorf("replace snapshot: %w", err)
	}

	s.metrics.IngestCycles.WithLabelValues("new").Inc()
	s.metrics.EntriesIngested.Add(float64(len(canonical)))
	s.logger.Info("ingested new snapshot", "fingerprint", hash, "entries", len(canonical))
	s.ready.Store(true)

	// The change feed is best effort: the snapshot is already committed,
	// and a missed notification only delays downstream consumers until the
	// next new fingerprint.
	if s.notifier != nil {
		if err := s.notifier.NotifyIngest(ctx, hash, canonical); err != nil {
			s.logger.Warn("ingest notification failed", "fingerprint", hash, "error", err)
		}
	}
	return result, nil
}

// fetchAll runs every source concurrently and concatenates their output in
// registration order. The first hard source failure cancels the rest.
func (s *Service) fetchAll(ctx context.Context) ([]domain.TrackEntry, error) {
	results := make([][]domain.TrackEntry, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			start := s.clock.Now()
			entries, err := src.Fetch(gctx)
			s.metrics.SourceDuration.WithLabelValues(src.Name()).Observe(s.clock.Since(start).Seconds())
			if err != nil {
				s.metrics.SourceFetchErrors.WithLabelValues(src.Name()).Inc()
				return fmt.Errorf("source %s: %w", src.Name(), err)
			}
			s.logger.Debug("source fetched", "source", src.Name(), "entries", len(entries))
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.TrackEntry
	for _, entries := range results {
		all = append(all, entries...)
	}
	return all, nil
}

// RunPeriodic executes ingest cycles every interval until the context is
// cancelled. Failed cycles retry with exponential backoff, starting at
// 30 seconds and capping at the interval itself, to avoid hammering an
// upstream that is already down.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	s.logger.Info("ingest loop started", "interval", interval)
	s.metrics.IngestRunning.Set(1)
	defer s.metrics.IngestRunning.Set(0)

	backoff := 30 * time.Second
	for {
		wait := interval
		if _, err := s.Run(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("ingest loop stopping", "reason", ctx.Err())
				return nil
			}
			s.logger.Error("ingest cycle failed", "error", err)
			wait = backoff
			backoff = min(backoff*2, interval)
		} else {
			backoff = 30 * time.Second
		}

		timer := s.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("ingest loop stopping", "reason", ctx.Err())
			return nil
		case <-timer.Chan():
		}
	}
}
