package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// WarningStore is the persistence surface ProctorService needs.
type WarningStore interface {
	GetByFormAndEmail(ctx context.Context, formID uuid.UUID, email string) (*model.CandidateAttempt, error)
	IncrementWarnings(ctx context.Context, formID uuid.UUID, email string) (int, error)
}

// ForcedFinalizer submits an attempt with its autosaved answers.
type ForcedFinalizer interface {
	ForcedFinalize(ctx context.Context, formID uuid.UUID, email string) (*model.CandidateAttempt, error)
}

// ProctorService records visibility-loss events against an open attempt and
// triggers the forced submit once the warning count crosses the threshold.
type ProctorService struct {
	attempts  WarningStore
	finalizer ForcedFinalizer
	rdb       *redis.Client
	cfg       *config.Config
	log       zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(attempts WarningStore, finalizer ForcedFinalizer, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		attempts:  attempts,
		finalizer: finalizer,
		rdb:       rdb,
		cfg:       cfg,
		log:       log.With().Str("component", "proctor_service").Logger(),
	}
}

// ViolationResult is the outcome of recording one proctoring event.
type ViolationResult struct {
	Warnings        int                     `json:"warnings"`
	ForcedSubmitted bool                    `json:"forced_submitted"`
	Attempt         *model.CandidateAttempt `json:"attempt,omitempty"`
}

type violationEvent struct {
	FormID    string          `json:"form_id"`
	Email     string          `json:"email"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// RecordViolation increments the warning counter by exactly one, queues the
// event for audit persistence, and publishes a live monitor update. When the
// new count crosses the threshold the attempt is force-submitted with its
// autosaved answers. The counter increment is a single guarded UPDATE, so
// concurrent events cannot double-fire the forced submit: only the request
// that observes the crossing count triggers it.
func (s *ProctorService) RecordViolation(ctx context.Context, formID uuid.UUID, email string, req model.RecordWarningRequest) (*ViolationResult, error) {
	warnings, err := s.attempts.IncrementWarnings(ctx, formID, email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("increment warnings: %w", err)
		}
		// No open attempt matched: either it never existed or it is already
		// submitted. Distinguish for the caller.
		attempt, fetchErr := s.attempts.GetByFormAndEmail(ctx, formID, email)
		if fetchErr != nil {
			if errors.Is(fetchErr, pgx.ErrNoRows) {
				return nil, ErrAttemptNotFound
			}
			return nil, fmt.Errorf("get attempt: %w", fetchErr)
		}
		if attempt.Status == model.AttemptStatusSubmitted {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("increment warnings: %w", err)
	}

	now := time.Now().UTC()
	s.enqueueAudit(ctx, violationEvent{
		FormID:    formID.String(),
		Email:     email,
		EventType: req.EventType,
		Payload:   req.Payload,
		Timestamp: now.Unix(),
	})
	s.publishWarning(ctx, formID, email, warnings, req.EventType, now)

	result := &ViolationResult{Warnings: warnings}

	if warnings == s.cfg.WarningThreshold+1 {
		s.log.Info().
			Str("form_id", formID.String()).
			Str("email", email).
			Int("warnings", warnings).
			Msg("warning threshold crossed, forcing submit")

		attempt, err := s.finalizer.ForcedFinalize(ctx, formID, email)
		if err != nil {
			// The retry queue owns the submit now; the counter already
			// guarantees no further warnings fire it again.
			s.log.Error().Err(err).Str("email", email).Msg("forced submit failed, queued for retry")
			return result, nil
		}
		result.ForcedSubmitted = true
		result.Attempt = attempt
	}

	return result, nil
}

// enqueueAudit pushes the event onto the persistence queue consumed by the
// violation worker. Best-effort: the warnings column is the authoritative
// count, the event log is forensic detail.
func (s *ProctorService) enqueueAudit(ctx context.Context, event violationEvent) {
	payload, _ := json.Marshal(event)
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("email", event.Email).Msg("failed to queue violation event")
	}
}

func (s *ProctorService) publishWarning(ctx context.Context, formID uuid.UUID, email string, warnings int, eventType string, at time.Time) {
	payload, _ := json.Marshal(model.MonitorEvent{
		Type:      "WARNING",
		Email:     email,
		Warnings:  warnings,
		EventType: eventType,
		At:        at,
	})
	if err := s.rdb.Publish(ctx, config.CacheKey.FormMonitorChannel(formID.String()), payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish warning event")
	}
}

var _ ForcedFinalizer = (*AttemptService)(nil)
