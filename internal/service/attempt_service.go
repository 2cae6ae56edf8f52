package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/assessly/assessly-backend/internal/clock"
	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Attempt lifecycle errors.
var (
	ErrFormNotAvailable = errors.New("form is not available")
	ErrAlreadySubmitted = errors.New("attempt is already submitted")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrTermsRequired    = errors.New("terms must be accepted")
)

// AttemptStore is the persistence surface AttemptService needs.
type AttemptStore interface {
	GetByFormAndEmail(ctx context.Context, formID uuid.UUID, email string) (*model.CandidateAttempt, error)
	GetByResponseID(ctx context.Context, formID, responseID uuid.UUID) (*model.CandidateAttempt, error)
	Create(ctx context.Context, a *model.CandidateAttempt) error
	Finalize(ctx context.Context, formID uuid.UUID, email string, answers json.RawMessage, finishedAt time.Time, durationMs int64, late bool) (bool, error)
	UpdateDraft(ctx context.Context, formID uuid.UUID, email string, draft json.RawMessage) error
}

// FormStore is the form lookup surface AttemptService needs.
type FormStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.AssessmentForm, error)
}

// AttemptService handles the candidate attempt lifecycle: the one-time start,
// state recovery after a refresh, and idempotent finalization. The server
// clock is authoritative throughout; client-reported elapsed time is logged
// for diagnostics but never trusted.
type AttemptService struct {
	attempts AttemptStore
	forms    FormStore
	rdb      *redis.Client
	cfg      *config.Config
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, forms FormStore, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		forms:    forms,
		rdb:      rdb,
		cfg:      cfg,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// AttemptState is the snapshot a candidate client rebuilds from on mount.
// The client derives its countdown and warning display entirely from this;
// it keeps no authoritative local state.
type AttemptState struct {
	FormID           uuid.UUID           `json:"form_id"`
	Email            string              `json:"email"`
	ResponseID       uuid.UUID           `json:"response_id"`
	Status           model.AttemptStatus `json:"status"`
	Warnings         int                 `json:"warnings"`
	AutosavedAnswers map[string]string   `json:"autosaved_answers"`
	RemainingMs      int64               `json:"remaining_ms"`
}

// Get retrieves the attempt for a form-candidate pair.
func (s *AttemptService) Get(ctx context.Context, formID uuid.UUID, email string) (*model.CandidateAttempt, error) {
	attempt, err := s.attempts.GetByFormAndEmail(ctx, formID, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return attempt, nil
}

// Resume resolves an attempt by its client-generated response ID, confirming
// it belongs to the calling candidate. A stale or foreign response ID reads
// as a missing attempt, never as someone else's record.
func (s *AttemptService) Resume(ctx context.Context, formID uuid.UUID, email string, responseID uuid.UUID) (*model.CandidateAttempt, error) {
	attempt, err := s.attempts.GetByResponseID(ctx, formID, responseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt by response id: %w", err)
	}
	if attempt.Email != email {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// Start creates an attempt at terms acceptance, recording the server-side
// start timestamp. Idempotent: a repeat call (page refresh, second device,
// concurrent double-click) returns the existing attempt without restarting
// the clock. Rejected once the attempt is submitted.
func (s *AttemptService) Start(ctx context.Context, formID uuid.UUID, email string, req model.StartAttemptRequest) (*model.CandidateAttempt, error) {
	if !req.TermsAccepted {
		return nil, ErrTermsRequired
	}

	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFormNotAvailable
		}
		return nil, fmt.Errorf("get form: %w", err)
	}
	if form.Status != model.FormStatusActive {
		return nil, ErrFormNotAvailable
	}

	attempt := &model.CandidateAttempt{
		FormID:        formID,
		Email:         email,
		ResponseID:    req.ResponseID,
		Status:        model.AttemptStatusNotSubmitted,
		TermsAccepted: true,
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}

		// Attempt already exists (refresh or concurrent start). Resume it.
		existing, fetchErr := s.attempts.GetByFormAndEmail(ctx, formID, email)
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch existing attempt: %w", fetchErr)
		}
		if existing.Status == model.AttemptStatusSubmitted {
			return nil, ErrAlreadySubmitted
		}
		s.cacheTiming(ctx, existing, form.DurationMinutes)
		return existing, nil
	}

	s.cacheTiming(ctx, attempt, form.DurationMinutes)
	return attempt, nil
}

// cacheTiming stores the start timestamp and form duration in Redis so the
// hot state endpoint avoids PostgreSQL. Best-effort: the DB fallback in
// State covers a failed write.
func (s *AttemptService) cacheTiming(ctx context.Context, a *model.CandidateAttempt, durationMinutes int) {
	startKey := config.CacheKey.AttemptStartKey(a.FormID.String(), a.Email)
	if err := s.rdb.Set(ctx, startKey, a.StartedAt.UTC().Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("email", a.Email).Msg("failed to cache attempt start time")
	}
	durationKey := config.CacheKey.FormDurationKey(a.FormID.String())
	if err := s.rdb.Set(ctx, durationKey, durationMinutes, 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache form duration")
	}
}

// State returns the candidate's current snapshot: status, warnings,
// autosaved answers and server-computed remaining time.
func (s *AttemptService) State(ctx context.Context, formID uuid.UUID, email string) (*AttemptState, error) {
	attempt, err := s.attempts.GetByFormAndEmail(ctx, formID, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	state := &AttemptState{
		FormID:           formID,
		Email:            email,
		ResponseID:       attempt.ResponseID,
		Status:           attempt.Status,
		Warnings:         attempt.Warnings,
		AutosavedAnswers: map[string]string{},
	}

	if attempt.Status == model.AttemptStatusSubmitted {
		return state, nil
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.CandidateAnswersKey(formID.String(), email)).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}
	if answers != nil {
		state.AutosavedAnswers = answers
	}

	duration, err := s.formDuration(ctx, formID)
	if err != nil {
		return nil, err
	}

	startedAt, err := s.startTime(ctx, formID, email, attempt)
	if err != nil {
		return nil, err
	}

	state.RemainingMs = clock.RemainingMillis(duration, startedAt, time.Now().UTC())
	return state, nil
}

// formDuration reads the form duration from Redis, falling back to
// PostgreSQL on a miss and self-healing the cache.
func (s *AttemptService) formDuration(ctx context.Context, formID uuid.UUID) (int, error) {
	key := config.CacheKey.FormDurationKey(formID.String())

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		duration, parseErr := strconv.Atoi(val)
		if parseErr == nil {
			return duration, nil
		}
		s.log.Warn().Str("value", val).Msg("invalid cached duration, falling back to db")
	} else if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get cached duration: %w", err)
	}

	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return 0, fmt.Errorf("get form for duration: %w", err)
	}

	_ = s.rdb.Set(ctx, key, form.DurationMinutes, 0)
	return form.DurationMinutes, nil
}

// startTime reads the attempt start from Redis, falling back to the already
// loaded DB row on a miss and self-healing the cache.
func (s *AttemptService) startTime(ctx context.Context, formID uuid.UUID, email string, attempt *model.CandidateAttempt) (time.Time, error) {
	key := config.CacheKey.AttemptStartKey(formID.String(), email)

	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		startedAt := attempt.StartedAt.UTC()
		_ = s.rdb.Set(ctx, key, startedAt.Unix(), 0)
		return startedAt, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get cached start time: %w", err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time in cache: %w", err)
	}
	return time.Unix(unix, 0).UTC(), nil
}

// Finalize transitions the attempt to SUBMITTED with the given payload.
// Idempotent: once submitted, any further call returns the stored record
// untouched, which resolves the manual-submit vs forced-submit race. Late
// submissions (past duration + grace) are accepted and flagged.
func (s *AttemptService) Finalize(ctx context.Context, formID uuid.UUID, email string, answers json.RawMessage, forced bool) (*model.CandidateAttempt, error) {
	attempt, err := s.attempts.GetByFormAndEmail(ctx, formID, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if attempt.Status == model.AttemptStatusSubmitted {
		return attempt, nil
	}

	duration, err := s.formDuration(ctx, formID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	verdict := clock.Check(duration, s.cfg.SubmissionGrace, attempt.StartedAt.UTC(), now)
	if verdict.Late {
		s.log.Warn().
			Str("form_id", formID.String()).
			Str("email", email).
			Int64("elapsed_ms", verdict.ElapsedMs).
			Bool("forced", forced).
			Msg("late finalization accepted")
	}

	performed, err := s.attempts.Finalize(ctx, formID, email, answers, now, verdict.ElapsedMs, verdict.Late)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	if !performed {
		// Lost the race to a concurrent finalize. Return the winner's record.
		return s.attempts.GetByFormAndEmail(ctx, formID, email)
	}

	s.teardown(ctx, formID, email)
	s.publishMonitorEvent(ctx, formID, model.MonitorEvent{
		Type:     monitorEventType(forced),
		Email:    email,
		Warnings: attempt.Warnings,
		At:       now,
	})

	return s.attempts.GetByFormAndEmail(ctx, formID, email)
}

func monitorEventType(forced bool) string {
	if forced {
		return "FORCED_SUBMITTED"
	}
	return "SUBMITTED"
}

// ForcedFinalize submits the attempt with whatever answers have been
// autosaved so far. Called when the warning count crosses the threshold.
// A persistence failure enqueues a retry job instead of losing the submit.
func (s *AttemptService) ForcedFinalize(ctx context.Context, formID uuid.UUID, email string) (*model.CandidateAttempt, error) {
	answers, err := s.draftAnswers(ctx, formID, email)
	if err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("failed to collect draft answers for forced submit")
		answers = json.RawMessage(`{}`)
	}

	attempt, err := s.Finalize(ctx, formID, email, answers, true)
	if err != nil {
		s.enqueueFinalizeRetry(ctx, formID, email, answers)
		return nil, err
	}
	return attempt, nil
}

// draftAnswers collects the autosaved answer hash into a single JSON object
// keyed by field ID.
func (s *AttemptService) draftAnswers(ctx context.Context, formID uuid.UUID, email string) (json.RawMessage, error) {
	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.CandidateAnswersKey(formID.String(), email)).Result()
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = map[string]string{}
	}
	return json.Marshal(answers)
}

type finalizeRetryJob struct {
	FormID    string          `json:"form_id"`
	Email     string          `json:"email"`
	Answers   json.RawMessage `json:"answers"`
	Timestamp int64           `json:"timestamp"`
}

func (s *AttemptService) enqueueFinalizeRetry(ctx context.Context, formID uuid.UUID, email string, answers json.RawMessage) {
	job, _ := json.Marshal(finalizeRetryJob{
		FormID:    formID.String(),
		Email:     email,
		Answers:   answers,
		Timestamp: time.Now().UTC().Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.FinalizeRetryQueue, job).Err(); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("failed to enqueue finalize retry")
	}
}

// SaveDraftAnswer autosaves one field's answer to the Redis hash and queues
// it for asynchronous persistence to PostgreSQL.
func (s *AttemptService) SaveDraftAnswer(ctx context.Context, formID uuid.UUID, email, fieldID, answer string) error {
	key := config.CacheKey.CandidateAnswersKey(formID.String(), email)
	if err := s.rdb.HSet(ctx, key, fieldID, answer).Err(); err != nil {
		return fmt.Errorf("autosave answer: %w", err)
	}

	job, _ := json.Marshal(draftPayload{
		FormID:  formID.String(),
		Email:   email,
		FieldID: fieldID,
		Answer:  answer,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job).Err(); err != nil {
		// Redis still holds the answer; the DB copy catches up on the next save.
		s.log.Warn().Err(err).Str("email", email).Msg("failed to queue answer persistence")
	}
	return nil
}

type draftPayload struct {
	FormID  string `json:"form_id"`
	Email   string `json:"email"`
	FieldID string `json:"field_id"`
	Answer  string `json:"answer"`
}

// teardown clears the attempt's Redis working state after finalization: the
// autosave hash, the cached start time and the candidate session.
func (s *AttemptService) teardown(ctx context.Context, formID uuid.UUID, email string) {
	keys := []string{
		config.CacheKey.CandidateAnswersKey(formID.String(), email),
		config.CacheKey.AttemptStartKey(formID.String(), email),
		config.CacheKey.CandidateSessionKey(formID.String(), email),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn().Err(err).Str("email", email).Msg("failed to clear attempt cache state")
	}
}

// publishMonitorEvent pushes a live update onto the form's monitor channel.
// Best-effort: the dashboard also polls aggregates.
func (s *AttemptService) publishMonitorEvent(ctx context.Context, formID uuid.UUID, event model.MonitorEvent) {
	payload, _ := json.Marshal(event)
	if err := s.rdb.Publish(ctx, config.CacheKey.FormMonitorChannel(formID.String()), payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish monitor event")
	}
}
