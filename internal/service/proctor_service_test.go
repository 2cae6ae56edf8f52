package service

import (
	"context"
	"errors"
	"testing"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// fakeWarningStore mirrors the repository's guard: the increment only
// matches an open attempt, otherwise pgx.ErrNoRows.
type fakeWarningStore struct {
	attempt *model.CandidateAttempt
	getErr  error
}

func (f *fakeWarningStore) GetByFormAndEmail(_ context.Context, _ uuid.UUID, _ string) (*model.CandidateAttempt, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.attempt == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *f.attempt
	return &cp, nil
}

func (f *fakeWarningStore) IncrementWarnings(_ context.Context, _ uuid.UUID, _ string) (int, error) {
	if f.attempt == nil || f.attempt.Status == model.AttemptStatusSubmitted {
		return 0, pgx.ErrNoRows
	}
	f.attempt.Warnings++
	return f.attempt.Warnings, nil
}

type fakeFinalizer struct {
	store *fakeWarningStore
	calls int
	err   error
}

func (f *fakeFinalizer) ForcedFinalize(_ context.Context, _ uuid.UUID, _ string) (*model.CandidateAttempt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.store.attempt.Status = model.AttemptStatusSubmitted
	cp := *f.store.attempt
	return &cp, nil
}

func newProctorFixture(t *testing.T, warnings int) (*ProctorService, *fakeWarningStore, *fakeFinalizer, *redis.Client) {
	t.Helper()
	store := &fakeWarningStore{attempt: &model.CandidateAttempt{
		FormID:   uuid.New(),
		Email:    "a@example.com",
		Status:   model.AttemptStatusNotSubmitted,
		Warnings: warnings,
	}}
	finalizer := &fakeFinalizer{store: store}
	rdb := newTestRedis(t)
	svc := NewProctorService(store, finalizer, rdb, testConfig(), zerolog.Nop())
	return svc, store, finalizer, rdb
}

func tabHidden() model.RecordWarningRequest {
	return model.RecordWarningRequest{EventType: "TAB_HIDDEN"}
}

func TestRecordViolationIncrements(t *testing.T) {
	svc, store, finalizer, rdb := newProctorFixture(t, 0)
	ctx := context.Background()
	formID := store.attempt.FormID

	result, err := svc.RecordViolation(ctx, formID, "a@example.com", tabHidden())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.Warnings != 1 {
		t.Errorf("warnings = %d, want 1", result.Warnings)
	}
	if result.ForcedSubmitted {
		t.Error("first warning must not force a submit")
	}
	if finalizer.calls != 0 {
		t.Errorf("finalizer called %d times below threshold", finalizer.calls)
	}

	if queued, _ := rdb.LLen(ctx, config.WorkerKey.PersistViolationsQueue).Result(); queued != 1 {
		t.Errorf("expected 1 audit event queued, got %d", queued)
	}
}

func TestForcedSubmitFiresExactlyOnceAtThreshold(t *testing.T) {
	svc, store, finalizer, _ := newProctorFixture(t, 0)
	ctx := context.Background()
	formID := store.attempt.FormID

	// Warnings 1 through 3 are tolerated.
	for i := 1; i <= 3; i++ {
		result, err := svc.RecordViolation(ctx, formID, "a@example.com", tabHidden())
		if err != nil {
			t.Fatalf("warning %d: %v", i, err)
		}
		if result.ForcedSubmitted {
			t.Fatalf("forced submit fired at warning %d", i)
		}
	}

	// The fourth violation crosses the threshold.
	result, err := svc.RecordViolation(ctx, formID, "a@example.com", tabHidden())
	if err != nil {
		t.Fatalf("crossing warning: %v", err)
	}
	if !result.ForcedSubmitted {
		t.Fatal("expected forced submit on the fourth violation")
	}
	if result.Warnings != 4 {
		t.Errorf("warnings = %d, want 4", result.Warnings)
	}
	if finalizer.calls != 1 {
		t.Errorf("finalizer called %d times, want 1", finalizer.calls)
	}

	// Further events against the now-submitted attempt are rejected, never
	// re-firing the submit.
	if _, err := svc.RecordViolation(ctx, formID, "a@example.com", tabHidden()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted after forced submit, got %v", err)
	}
	if finalizer.calls != 1 {
		t.Errorf("finalizer re-fired, calls = %d", finalizer.calls)
	}
}

func TestForcedSubmitFailureDoesNotRefire(t *testing.T) {
	svc, store, finalizer, _ := newProctorFixture(t, 3)
	ctx := context.Background()
	formID := store.attempt.FormID
	finalizer.err = errors.New("db down")

	// Crossing the threshold with a broken finalizer still reports the
	// warning; the retry queue owns the submit from here.
	result, err := svc.RecordViolation(ctx, formID, "a@example.com", tabHidden())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.ForcedSubmitted {
		t.Error("failed forced submit must not be reported as submitted")
	}
	if finalizer.calls != 1 {
		t.Fatalf("finalizer calls = %d, want 1", finalizer.calls)
	}

	// The attempt is still open, so a fifth warning lands, but the count is
	// past the crossing point and must not trigger a second forced submit.
	result, err = svc.RecordViolation(ctx, formID, "a@example.com", tabHidden())
	if err != nil {
		t.Fatalf("record after failure: %v", err)
	}
	if result.Warnings != 5 {
		t.Errorf("warnings = %d, want 5", result.Warnings)
	}
	if finalizer.calls != 1 {
		t.Errorf("finalizer re-fired past the crossing, calls = %d", finalizer.calls)
	}
}

func TestRecordViolationMissingAttempt(t *testing.T) {
	svc, store, _, _ := newProctorFixture(t, 0)
	formID := store.attempt.FormID
	store.attempt = nil

	_, err := svc.RecordViolation(context.Background(), formID, "a@example.com", tabHidden())
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestRecordViolationFetchFailureIsNotNotFound(t *testing.T) {
	svc, store, _, _ := newProctorFixture(t, 0)
	formID := store.attempt.FormID
	store.attempt.Status = model.AttemptStatusSubmitted
	store.getErr = errors.New("connection reset")

	// The increment misses (terminal attempt) and the follow-up fetch hits a
	// transient DB failure. That must surface as a server error, not as a
	// missing or submitted attempt.
	_, err := svc.RecordViolation(context.Background(), formID, "a@example.com", tabHidden())
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrAttemptNotFound) || errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("transient failure collapsed into %v", err)
	}
	if !errors.Is(err, store.getErr) {
		t.Errorf("fetch error not propagated: %v", err)
	}
}

func TestRecordViolationAfterSubmit(t *testing.T) {
	svc, store, _, _ := newProctorFixture(t, 2)
	formID := store.attempt.FormID
	store.attempt.Status = model.AttemptStatusSubmitted

	_, err := svc.RecordViolation(context.Background(), formID, "a@example.com", tabHidden())
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if store.attempt.Warnings != 2 {
		t.Errorf("warnings moved on a submitted attempt: %d", store.attempt.Warnings)
	}
}
