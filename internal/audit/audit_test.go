package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestTrail(t *testing.T, cfg Config) (*Trail, *clockwork.FakeClock) {
	t.Helper()

	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 1 << 20
	}
	if cfg.RingSize == 0 {
		cfg.RingSize = 10
	}

	clock := clockwork.NewFakeClockAt(auditStart)
	trail, err := New(cfg, clock)
	require.NoError(t, err)
	return trail, clock
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func TestLogEvent_WritesJSONArrayPerDay(t *testing.T) {
	trail, _ := newTestTrail(t, Config{})

	trail.LogEvent(Entry{Category: "session", Action: "create", Resource: "abc"})
	trail.LogEvent(Entry{Category: "session", Action: "submit", Resource: "abc"})

	entries := readEntries(t, filepath.Join(trail.cfg.Dir, "audit-2026-03-14.json"))
	require.Len(t, entries, 2)
	assert.Equal(t, "create", entries[0].Action)
	assert.Equal(t, "submit", entries[1].Action)
	assert.Equal(t, RiskLow, entries[0].Risk)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, auditStart, entries[0].Timestamp)
}

func TestLogEvent_DayRollover(t *testing.T) {
	trail, clock := newTestTrail(t, Config{})

	trail.LogEvent(Entry{Action: "one"})
	clock.Advance(24 * time.Hour)
	trail.LogEvent(Entry{Action: "two"})

	first := readEntries(t, filepath.Join(trail.cfg.Dir, "audit-2026-03-14.json"))
	second := readEntries(t, filepath.Join(trail.cfg.Dir, "audit-2026-03-15.json"))
	assert.Len(t, first, 1)
	assert.Len(t, second, 1)
	assert.Equal(t, "two", second[0].Action)
}

func TestRotation_SizeCapTriggersExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	trail, _ := newTestTrail(t, Config{Dir: dir, MaxFileSize: 2048})

	const total = 20
	for i := 0; i < total; i++ {
		trail.LogEvent(Entry{
			Category: "session",
			Action:   "save_progress",
			Resource: "00000000-0000-0000-0000-000000000000",
			Details:  map[string]any{"page": i, "padding": strings.Repeat("x", 64)},
		})
	}

	archives, err := filepath.Glob(filepath.Join(dir, "audit-*.json.*"))
	require.NoError(t, err)
	require.Len(t, archives, 1, "expected exactly one rotation")

	active := readEntries(t, filepath.Join(dir, "audit-2026-03-14.json"))
	archived := readEntries(t, archives[0])
	assert.Equal(t, total, len(active)+len(archived),
		"union of active file and archive must equal events logged")
}

func TestCleanup_ArchiveCountCap(t *testing.T) {
	dir := t.TempDir()
	trail, clock := newTestTrail(t, Config{Dir: dir, MaxFileSize: 512, MaxArchives: 2})

	for i := 0; i < 60; i++ {
		clock.Advance(time.Second) // distinct rotation timestamps
		trail.LogEvent(Entry{Details: map[string]any{"padding": strings.Repeat("y", 64)}})
	}

	archives, err := filepath.Glob(filepath.Join(dir, "audit-*.json.*"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(archives), 2)
}

func TestCleanup_RetentionDays(t *testing.T) {
	dir := t.TempDir()
	trail, clock := newTestTrail(t, Config{Dir: dir, MaxFileSize: 1 << 20, RetentionDays: 7})

	// plant an ancient archive
	stale := filepath.Join(dir, "audit-2026-01-01.json.20260101T120000")
	require.NoError(t, os.WriteFile(stale, []byte("[]"), 0o640))

	trail.mu.Lock()
	trail.cleanupLocked(clock.Now())
	trail.mu.Unlock()

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale archive should have been removed")
}

func TestRing_KeepsMostRecentHighRisk(t *testing.T) {
	trail, _ := newTestTrail(t, Config{RingSize: 3})

	trail.LogEvent(Entry{Action: "low", Risk: RiskLow})
	for i, action := range []string{"a", "b", "c", "d"} {
		_ = i
		trail.LogEvent(Entry{Action: action, Risk: RiskHigh})
	}

	recent := trail.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].Action) // newest first
	assert.Equal(t, "c", recent[1].Action)
	assert.Equal(t, "b", recent[2].Action)
}

func TestAlert_FiresForHighRiskOnly(t *testing.T) {
	var alerted []Entry
	cfg := Config{Alert: func(e Entry) { alerted = append(alerted, e) }}
	trail, _ := newTestTrail(t, cfg)

	trail.LogEvent(Entry{Action: "routine", Risk: RiskLow})
	trail.LogEvent(Entry{Action: "medium", Risk: RiskMedium})
	trail.LogEvent(Entry{Action: "bad", Risk: RiskHigh})
	trail.LogEvent(Entry{Action: "worse", Risk: RiskCritical})

	require.Len(t, alerted, 2)
	assert.Equal(t, "bad", alerted[0].Action)
	assert.Equal(t, "worse", alerted[1].Action)
}

func TestLogEvent_UnwritableDirectoryIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	trail, _ := newTestTrail(t, Config{Dir: dir})

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o750) })

	assert.NotPanics(t, func() {
		trail.LogEvent(Entry{Action: "doomed"})
	})
}

func TestNew_ReloadsCurrentDayFile(t *testing.T) {
	dir := t.TempDir()
	trail, _ := newTestTrail(t, Config{Dir: dir})
	trail.LogEvent(Entry{Action: "before-restart"})

	reloaded, err := New(Config{Dir: dir, MaxFileSize: 1 << 20, RingSize: 10},
		clockwork.NewFakeClockAt(auditStart))
	require.NoError(t, err)
	reloaded.LogEvent(Entry{Action: "after-restart"})

	entries := readEntries(t, filepath.Join(dir, "audit-2026-03-14.json"))
	require.Len(t, entries, 2)
	assert.Equal(t, "before-restart", entries[0].Action)
	assert.Equal(t, "after-restart", entries[1].Action)
}
