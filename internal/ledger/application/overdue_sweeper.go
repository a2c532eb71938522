package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	ledger "fee-ledger/internal/ledger/domain"
	"fee-ledger/internal/observability/metrics"
)

// SweepOverdue refreshes pending entries whose due date has passed so that
// their stored status becomes overdue. Failures on single entries are logged
// and skipped. It returns the number of entries whose status changed.
func (e *Engine) SweepOverdue(ctx context.Context, limit int) (int, error) {
	today := ledger.DateOf(e.now())
	entries, err := e.store.ListEntries(ctx, ledger.EntryFilter{
		Statuses:  []ledger.Status{ledger.StatusPending},
		DueBefore: today,
		Limit:     limit,
	})
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		_, changed, err := e.RefreshStatus(ctx, entry.ID)
		if err != nil {
			e.logger.Printf("overdue sweep: entry=%s err=%v", entry.ID, err)
			continue
		}
		if changed {
			refreshed++
		}
	}
	metrics.AddSweepRefreshed(refreshed)
	return refreshed, nil
}

// OverdueSweeper runs SweepOverdue once a day at a fixed UTC time.
type OverdueSweeper struct {
	engine *Engine
	hour   int
	minute int
	batch  int
	logger *log.Logger
	now    func() time.Time
}

// NewOverdueSweeper builds a sweeper that fires daily at "HH:MM" UTC.
func NewOverdueSweeper(engine *Engine, at string, batch int, logger *log.Logger) (*OverdueSweeper, error) {
	if engine == nil {
		return nil, errors.New("overdue sweeper: nil engine")
	}
	hour, minute, err := parseDailyAt(at)
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		batch = 500
	}
	if logger == nil {
		logger = log.Default()
	}
	return &OverdueSweeper{
		engine: engine,
		hour:   hour,
		minute: minute,
		batch:  batch,
		logger: logger,
		now:    func() time.Time { return engine.now() },
	}, nil
}

// Start runs the sweep loop until ctx is cancelled.
func (s *OverdueSweeper) Start(ctx context.Context) {
	go func() {
		for {
			wait := s.untilNext(s.now())
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			s.RunOnce(ctx)
		}
	}()
}

// RunOnce sweeps until a batch comes back short of the batch size.
func (s *OverdueSweeper) RunOnce(ctx context.Context) int {
	total := 0
	for {
		refreshed, err := s.engine.SweepOverdue(ctx, s.batch)
		total += refreshed
		if err != nil {
			s.logger.Printf("overdue sweep: err=%v", err)
			return total
		}
		if refreshed < s.batch {
			break
		}
	}
	s.logger.Printf("overdue sweep: refreshed=%d", total)
	return total
}

func (s *OverdueSweeper) untilNext(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func parseDailyAt(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 5, nil
	}
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("overdue sweeper: invalid daily time %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("overdue sweeper: invalid hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("overdue sweeper: invalid minute %q", parts[1])
	}
	return hour, minute, nil
}
