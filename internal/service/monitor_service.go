package service

import (
	"context"
	"sync"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MonitorService orchestrates the live proctoring dashboard.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	rdb         *redis.Client
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, rdb *redis.Client) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo, rdb: rdb}
}

// ProctoringSnapshot holds every candidate's live state plus persisted
// violation counts for one form.
type ProctoringSnapshot struct {
	Attempts        map[string]model.AttemptStatusRow `json:"attempts"`
	ViolationCounts map[string]int64                  `json:"violation_counts"`
	TotalViolations int64                             `json:"total_violations"`
}

// GetSnapshot fetches attempt states and violation counts concurrently.
// Attempt states are critical; persisted violation counts are best-effort
// since the live counter already rides on the attempt row.
func (s *MonitorService) GetSnapshot(ctx context.Context, formID uuid.UUID) (*ProctoringSnapshot, error) {
	snapshot := &ProctoringSnapshot{
		Attempts:        make(map[string]model.AttemptStatusRow),
		ViolationCounts: make(map[string]int64),
	}

	var (
		attempts    map[string]model.AttemptStatusRow
		violations  map[string]int64
		attemptsErr error
		eventsErr   error
		wg          sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		attempts, attemptsErr = s.monitorRepo.GetAttemptStatuses(ctx, formID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violations, eventsErr = s.monitorRepo.GetViolationCounts(ctx, formID)
	}()

	wg.Wait()

	if attemptsErr != nil {
		return nil, attemptsErr
	}
	if attempts != nil {
		snapshot.Attempts = attempts
	}

	if eventsErr == nil && violations != nil {
		snapshot.ViolationCounts = violations
		for _, count := range violations {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}

// GetEventBreakdown returns per-event-type counts for one candidate.
func (s *MonitorService) GetEventBreakdown(ctx context.Context, formID uuid.UUID, email string) (map[string]int64, error) {
	return s.monitorRepo.GetEventBreakdown(ctx, formID, email)
}

// Subscribe opens a Redis subscription on the form's monitor channel for
// streaming live events to a dashboard. The caller owns the returned
// subscription and must Close it.
func (s *MonitorService) Subscribe(ctx context.Context, formID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.FormMonitorChannel(formID.String()))
}
