// Package trend maintains bounded per-entity history windows of overall risk
// scores and derives a direction and sparkline series from them. One window
// exists per contract id plus one for the portfolio; windows have no cross-id
// contention.
package trend

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Direction classifies how an entity's risk evolved over its window.
type Direction string

// Trend directions. Risk going up is worsening.
const (
	DirectionImproving Direction = "improving"
	DirectionWorsening Direction = "worsening"
	DirectionFlat      Direction = "flat"
)

// Tracker owns the history windows. It is safe for concurrent use across ids.
type Tracker struct {
	dir     string
	window  int
	epsilon float64
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a Tracker rooted at cfg.Dir with window size cfg.Window.
func NewTracker(cfg config.TrendConfig, logger *zap.Logger) *Tracker {
	return &Tracker{
		dir:     cfg.Dir,
		window:  cfg.Window,
		epsilon: cfg.Epsilon,
		logger:  logger.Named("trend"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Append records a sample for the entity, evicting the oldest sample once the
// window exceeds its bound. Re-appending a sample with an identical timestamp
// replaces the existing entry instead of duplicating it, so reruns of the
// same pipeline stage stay idempotent.
func (t *Tracker) Append(id string, ts time.Time, overall float64) error {
	lock := t.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	samples, err := t.loadLocked(id)
	if err != nil {
		return err
	}

	ts = ts.UTC()
	replaced := false
	for i := range samples {
		if samples[i].Timestamp.Equal(ts) {
			samples[i].Overall = overall
			replaced = true
			break
		}
	}
	if !replaced {
		samples = append(samples, schemas.HistorySample{Timestamp: ts, Overall: overall})
		sort.Slice(samples, func(i, j int) bool {
			return samples[i].Timestamp.Before(samples[j].Timestamp)
		})
	}
	if len(samples) > t.window {
		samples = samples[len(samples)-t.window:]
	}

	return t.saveLocked(id, samples)
}

// Series returns the ordered samples for the entity, oldest first. A missing
// window yields an empty series, not an error.
func (t *Tracker) Series(id string) ([]schemas.HistorySample, error) {
	lock := t.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return t.loadLocked(id)
}

// Direction derives the trend from the sign of the slope between the first
// and last sample in the window. Differences within epsilon count as flat.
func (t *Tracker) Direction(id string) (Direction, error) {
	samples, err := t.Series(id)
	if err != nil {
		return DirectionFlat, err
	}
	if len(samples) < 2 {
		return DirectionFlat, nil
	}
	slope := samples[len(samples)-1].Overall - samples[0].Overall
	switch {
	case slope > t.epsilon:
		return DirectionWorsening, nil
	case slope < -t.epsilon:
		return DirectionImproving, nil
	default:
		return DirectionFlat, nil
	}
}

func (t *Tracker) loadLocked(id string) ([]schemas.HistorySample, error) {
	data, err := os.ReadFile(t.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history for %s: %w", id, err)
	}
	var samples []schemas.HistorySample
	if err := json.Unmarshal(data, &samples); err != nil {
		// A mangled history window is not worth failing a run over; start a
		// fresh window and say so.
		t.logger.Warn("History window is corrupt; starting fresh",
			zap.String("id", id), zap.Error(err))
		return nil, nil
	}
	return samples, nil
}

func (t *Tracker) saveLocked(id string, samples []schemas.HistorySample) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history for %s: %w", id, err)
	}
	if err := os.WriteFile(t.path(id), data, 0o644); err != nil {
		return fmt.Errorf("failed to write history for %s: %w", id, err)
	}
	return nil
}

func (t *Tracker) lockFor(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	t.locks[id] = l
	return l
}

func (t *Tracker) path(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, id)
	return filepath.Join(t.dir, safe+".history.json")
}
