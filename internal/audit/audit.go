// Package audit keeps an append-only trail of mutating and high-risk
// operations. Entries are grouped into one JSON-array file per UTC day,
// rotated when a day's file exceeds a size cap, and pruned by archive count
// and age. Writes are best-effort: a failed audit write never fails the
// operation it describes.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/formpulse/formpulse/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// Level is the log level of an entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one immutable audit record.
type Entry struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         Level          `json:"level"`
	Category      string         `json:"category"`
	Action        string         `json:"action"`
	Resource      string         `json:"resource"`
	Actor         string         `json:"actor"`
	NetworkOrigin string         `json:"network_origin"`
	Outcome       string         `json:"outcome"`
	Risk          Risk           `json:"risk"`
	Details       map[string]any `json:"details,omitempty"`
}

// AlertFunc is invoked for each high or critical entry. The concrete sink
// (pager, webhook, ...) is supplied by the caller.
type AlertFunc func(Entry)

// Config controls file placement, rotation and retention.
type Config struct {
	// Dir is the audit log directory.
	Dir string
	// MaxFileSize is the per-day size cap in bytes before rotation.
	MaxFileSize int64
	// MaxArchives caps the number of rotated files kept.
	MaxArchives int
	// RetentionDays removes archives older than this many days.
	RetentionDays int
	// RingSize bounds the in-memory buffer of recent high/critical entries.
	RingSize int
	// Alert, if set, receives high/critical entries as they are logged.
	Alert AlertFunc
}

// Trail is the audit writer. Safe for concurrent use.
type Trail struct {
	cfg   Config
	clock clockwork.Clock

	mu      sync.Mutex
	day     string
	entries []Entry
	ring    []Entry // most recent high/critical entries, oldest first
}

// New creates a Trail, creating the directory and loading the current
// day's entries so rotation accounting survives restarts.
func New(cfg Config, clock clockwork.Clock) (*Trail, error) {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	t := &Trail{cfg: cfg, clock: clock}
	t.day = dayOf(clock.Now())
	if data, err := os.ReadFile(t.activePath()); err == nil {
		// corrupt files start over rather than blocking the trail
		_ = json.Unmarshal(data, &t.entries)
	}
	return t, nil
}

// LogEvent appends an entry to the current day's log. Failures are logged
// and swallowed.
func (t *Trail) LogEvent(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = t.clock.Now().UTC()
	}
	if e.Risk == "" {
		e.Risk = RiskLow
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	metrics.AuditEventsTotal.WithLabelValues(string(e.Risk)).Inc()

	t.mu.Lock()
	t.appendLocked(e)
	alert := t.cfg.Alert
	t.mu.Unlock()

	if alert != nil && e.Risk.AtLeast(RiskHigh) {
		alert(e)
	}
}

func (t *Trail) appendLocked(e Entry) {
	day := dayOf(e.Timestamp)
	if day != t.day {
		// day rolled over; the previous day's file stays as it is
		t.day = day
		t.entries = nil
	}

	if e.Risk.AtLeast(RiskHigh) && t.cfg.RingSize > 0 {
		t.ring = append(t.ring, e)
		if len(t.ring) > t.cfg.RingSize {
			t.ring = t.ring[len(t.ring)-t.cfg.RingSize:]
		}
	}

	withNew := append(t.entries, e)
	data, err := json.MarshalIndent(withNew, "", "  ")
	if err != nil {
		t.writeFailure("marshal", err)
		return
	}

	if int64(len(data)) > t.cfg.MaxFileSize && len(t.entries) > 0 {
		t.rotateLocked(e.Timestamp)
		withNew = []Entry{e}
		data, err = json.MarshalIndent(withNew, "", "  ")
		if err != nil {
			t.writeFailure("marshal", err)
			return
		}
	}

	if err := os.WriteFile(t.activePath(), data, 0o640); err != nil {
		t.writeFailure("write", err)
		return
	}
	t.entries = withNew
}

// rotateLocked renames the active file to a timestamped archive and prunes
// old archives.
func (t *Trail) rotateLocked(now time.Time) {
	archive := t.activePath() + "." + now.UTC().Format("20060102T150405")
	if err := os.Rename(t.activePath(), archive); err != nil {
		t.writeFailure("rotate", err)
		return
	}
	metrics.AuditRotationsTotal.Inc()
	slog.Info("Audit log rotated", "archive", archive)

	t.entries = nil
	t.cleanupLocked(now)
}

// cleanupLocked removes archives beyond the count cap and past retention.
func (t *Trail) cleanupLocked(now time.Time) {
	pattern := filepath.Join(t.cfg.Dir, "audit-*.json.*")
	archives, err := filepath.Glob(pattern)
	if err != nil {
		t.writeFailure("cleanup", err)
		return
	}

	// newest first; the rotation-timestamp suffix sorts lexicographically
	sort.Sort(sort.Reverse(sort.StringSlice(archives)))

	cutoff := now.AddDate(0, 0, -t.cfg.RetentionDays)
	for i, archive := range archives {
		tooMany := t.cfg.MaxArchives > 0 && i >= t.cfg.MaxArchives
		if tooMany || t.archivedBefore(archive, cutoff) {
			if err := os.Remove(archive); err != nil {
				t.writeFailure("cleanup", err)
				continue
			}
			slog.Info("Audit archive removed", "archive", archive)
		}
	}
}

func (t *Trail) archivedBefore(archive string, cutoff time.Time) bool {
	if t.cfg.RetentionDays <= 0 {
		return false
	}
	idx := strings.LastIndex(archive, ".")
	if idx < 0 {
		return false
	}
	ts, err := time.Parse("20060102T150405", archive[idx+1:])
	if err != nil {
		return false
	}
	return ts.Before(cutoff)
}

// Recent returns the buffered high/critical entries, newest first.
func (t *Trail) Recent() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.ring))
	for i, e := range t.ring {
		out[len(out)-1-i] = e
	}
	return out
}

func (t *Trail) activePath() string {
	return filepath.Join(t.cfg.Dir, "audit-"+t.day+".json")
}

func (t *Trail) writeFailure(stage string, err error) {
	metrics.AuditWriteFailuresTotal.Inc()
	slog.Error("Audit write failed (swallowed)", "stage", stage, "error", err)
}

func dayOf(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
