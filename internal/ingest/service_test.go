package ingest

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
	"github.com/couchcryptid/cyclone-track-service/internal/observability"
)

type stubSource struct {
	name    string
	entries []domain.TrackEntry
	err     error
	calls   int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(context.Context) ([]domain.TrackEntry, error) {
	s.calls++
	return s.entries, s.err
}

type memGate struct {
	hashes    map[string]bool
	snapshot  []domain.TrackEntry
	writes    int
	lookupErr error
	writeErr  error
}

func newMemGate() *memGate {
	return &memGate{hashes: map[string]bool{}}
}

func (g *memGate) HasFingerprint(_ context.Context, hash string) (bool, error) {
	if g.lookupErr != nil {
		return false, g.lookupErr
	}
	return g.hashes[hash], nil
}

func (g *memGate) ReplaceSnapshot(_ context.Context, entries []domain.TrackEntry, hash string, _ []byte, _ time.Time) error {
	if g.writeErr != nil {
		return g.writeErr
	}
	g.hashes[hash] = true
	g.snapshot = entries
	g.writes++
	return nil
}

type recordingNotifier struct {
	calls  int
	hashes []string
	err    error
}

func (n *recordingNotifier) NotifyIngest(_ context.Context, hash string, _ []domain.TrackEntry) error {
	n.calls++
	n.hashes = append(n.hashes, hash)
	return n.err
}

func testEntries() []domain.TrackEntry {
	base := time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC)
	return []domain.TrackEntry{
		{ID: "al092024", Time: base, Lat: 26.2, Lon: -80.0, WindSpeed: 85, Source: "nhc"},
		{ID: "al092024", Time: base.Add(-6 * time.Hour), Lat: 25.8, Lon: -79.1, WindSpeed: 80, Source: "nhc"},
	}
}

func newTestService(t *testing.T, sources []Source, gate Gate, notifier Notifier) *Service {
	t.Helper()
	return New(
		sources, gate, notifier,
		clockwork.NewFakeClock(),
		slog.New(slog.DiscardHandler),
		observability.NewMetricsForTesting(),
	)
}

func TestRunIngestsNewSnapshot(t *testing.T) {
	gate := newMemGate()
	notifier := &recordingNotifier{}
	src := &stubSource{name: "nhc", entries: testEntries()}
	svc := newTestService(t, []Source{src}, gate, notifier)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.IsNew)
	assert.Equal(t, 2, result.Entries)
	assert.NotEmpty(t, result.Fingerprint)
	assert.Equal(t, 1, gate.writes)
	require.Equal(t, 1, notifier.calls)
	assert.Equal(t, result.Fingerprint, notifier.hashes[0])
	assert.NoError(t, svc.CheckReadiness(context.Background()))
}

func TestRunRepeatedDataIsNoOp(t *testing.T) {
	gate := newMemGate()
	notifier := &recordingNotifier{}
	src := &stubSource{name: "nhc", entries: testEntries()}
	svc := newTestService(t, []Source{src}, gate, notifier)

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.True(t, first.IsNew)
	stored := gate.snapshot

	second, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, second.IsNew)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 1, gate.writes, "a repeated payload must not rewrite the snapshot")
	assert.Equal(t, stored, gate.snapshot)
	assert.Equal(t, 1, notifier.calls, "no change feed event for a duplicate")
}

func TestRunSourceOrderIsDeterministic(t *testing.T) {
	base := time.Date(2024, 9, 3, 12, 0, 0, 0, time.UTC)
	a := &stubSource{name: "nhc", entries: []domain.TrackEntry{
		{ID: "al092024", Time: base, Lat: 26.2, Lon: -80.0, WindSpeed: 85, Source: "nhc"},
	}}
	b := &stubSource{name: "hwrf", entries: []domain.TrackEntry{
		{ID: "ep052024", Time: base, Lat: 15.0, Lon: -105.0, WindSpeed: 60, Source: "hwrf"},
	}}
	gate := newMemGate()
	svc := newTestService(t, []Source{a, b}, gate, nil)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Entries)

	require.Len(t, gate.snapshot, 2)
	assert.Equal(t, "al092024", gate.snapshot[0].ID)
	assert.Equal(t, "ep052024", gate.snapshot[1].ID)
}

func TestRunSourceFailureAbortsCycle(t *testing.T) {
	gate := newMemGate()
	good := &stubSource{name: "nhc", entries: testEntries()}
	bad := &stubSource{name: "hwrf", err: domain.ErrSourceFetch}
	svc := newTestService(t, []Source{good, bad}, gate, nil)

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceFetch)
	assert.ErrorContains(t, err, "hwrf")
	assert.Zero(t, gate.writes, "a failed cycle must leave no partial snapshot")
	assert.Error(t, svc.CheckReadiness(context.Background()))
}

func TestRunFingerprintLookupFailure(t *testing.T) {
	gate := newMemGate()
	gate.lookupErr = errors.New("database is locked")
	src := &stubSource{name: "nhc", entries: testEntries()}
	svc := newTestService(t, []Source{src}, gate, nil)

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "fingerprint lookup")
	assert.Zero(t, gate.writes)
}

func TestRunNotifierFailureDoesNotFailCycle(t *testing.T) {
	gate := newMemGate()
	notifier := &recordingNotifier{err: errors.New("broker unreachable")}
	src := &stubSource{name: "nhc", entries: testEntries()}
	svc := newTestService(t, []Source{src}, gate, notifier)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.IsNew)
	assert.Equal(t, 1, gate.writes)
}

func TestRunDropsInvalidEntries(t *testing.T) {
	entries := testEntries()
	entries = append(entries, domain.TrackEntry{
		ID: "al092024", Time: time.Date(2024, 9, 3, 18, 0, 0, 0, time.UTC),
		Lat: 120.0, Lon: -80.0, WindSpeed: 85, Source: "nhc",
	})
	gate := newMemGate()
	src := &stubSource{name: "nhc", entries: entries}
	svc := newTestService(t, []Source{src}, gate, nil)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Entries)
	assert.Len(t, gate.snapshot, 2)
}
