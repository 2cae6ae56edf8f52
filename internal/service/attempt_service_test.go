package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:          "test-secret",
		CandidateJWTExpiry: 40 * time.Minute,
		ManagerJWTExpiry:   12 * time.Hour,
		BcryptCost:         4,
		WarningThreshold:   3,
		SubmissionGrace:    time.Second,
	}
}

// fakeAttemptStore mimics the guarded-UPDATE semantics of the real
// repository: Create yields pgx.ErrNoRows on conflict, Finalize only writes
// while the attempt is still open.
type fakeAttemptStore struct {
	attempts      map[string]*model.CandidateAttempt
	finalizeCalls int
	lastAnswers   json.RawMessage
	lastLate      bool
	failFinalize  bool
	loseRace      bool
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: map[string]*model.CandidateAttempt{}}
}

func (f *fakeAttemptStore) GetByFormAndEmail(_ context.Context, _ uuid.UUID, email string) (*model.CandidateAttempt, error) {
	a, ok := f.attempts[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttemptStore) GetByResponseID(_ context.Context, _ uuid.UUID, responseID uuid.UUID) (*model.CandidateAttempt, error) {
	for _, a := range f.attempts {
		if a.ResponseID == responseID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAttemptStore) Create(_ context.Context, a *model.CandidateAttempt) error {
	if _, ok := f.attempts[a.Email]; ok {
		return pgx.ErrNoRows
	}
	a.StartedAt = time.Now().UTC()
	cp := *a
	f.attempts[a.Email] = &cp
	return nil
}

func (f *fakeAttemptStore) Finalize(_ context.Context, _ uuid.UUID, email string, answers json.RawMessage, finishedAt time.Time, durationMs int64, late bool) (bool, error) {
	f.finalizeCalls++
	if f.failFinalize {
		return false, errors.New("connection refused")
	}
	a, ok := f.attempts[email]
	if !ok || a.Status == model.AttemptStatusSubmitted {
		return false, nil
	}
	if f.loseRace {
		// A concurrent finalize won between the status read and the write.
		a.Status = model.AttemptStatusSubmitted
		return false, nil
	}
	f.lastAnswers = answers
	f.lastLate = late
	a.Status = model.AttemptStatusSubmitted
	a.Answers = answers
	a.FinishedAt = &finishedAt
	a.DurationMs = &durationMs
	a.Late = late
	return true, nil
}

func (f *fakeAttemptStore) UpdateDraft(_ context.Context, _ uuid.UUID, email string, draft json.RawMessage) error {
	if a, ok := f.attempts[email]; ok {
		a.DraftAnswers = draft
	}
	return nil
}

type fakeFormStore struct {
	forms map[uuid.UUID]*model.AssessmentForm
}

func (f *fakeFormStore) GetByID(_ context.Context, id uuid.UUID) (*model.AssessmentForm, error) {
	form, ok := f.forms[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return form, nil
}

func newAttemptFixture(t *testing.T, durationMinutes int) (*AttemptService, *fakeAttemptStore, *redis.Client, uuid.UUID) {
	t.Helper()
	formID := uuid.New()
	attempts := newFakeAttemptStore()
	forms := &fakeFormStore{forms: map[uuid.UUID]*model.AssessmentForm{
		formID: {ID: formID, Label: "Aptitude Round 1", DurationMinutes: durationMinutes, Status: model.FormStatusActive},
	}}
	rdb := newTestRedis(t)
	svc := NewAttemptService(attempts, forms, rdb, testConfig(), zerolog.Nop())
	return svc, attempts, rdb, formID
}

func TestStartRequiresTerms(t *testing.T) {
	svc, _, _, formID := newAttemptFixture(t, 30)

	_, err := svc.Start(context.Background(), formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(),
	})
	if !errors.Is(err, ErrTermsRequired) {
		t.Fatalf("expected ErrTermsRequired, got %v", err)
	}
}

func TestStartRejectsInactiveForm(t *testing.T) {
	svc, _, _, formID := newAttemptFixture(t, 30)
	forms := svc.forms.(*fakeFormStore)
	forms.forms[formID].Status = model.FormStatusInactive

	_, err := svc.Start(context.Background(), formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	})
	if !errors.Is(err, ErrFormNotAvailable) {
		t.Fatalf("expected ErrFormNotAvailable, got %v", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	svc, store, _, formID := newAttemptFixture(t, 30)
	ctx := context.Background()
	responseID := uuid.New()

	first, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: responseID, TermsAccepted: true,
	})
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	// Refresh or double-click: same candidate starts again. The original
	// attempt resumes; the clock does not restart.
	second, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	if second.ResponseID != responseID {
		t.Errorf("expected original response ID %s, got %s", responseID, second.ResponseID)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("start timestamp changed on repeat: %v vs %v", first.StartedAt, second.StartedAt)
	}
	if len(store.attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(store.attempts))
	}
}

func TestResumeByResponseID(t *testing.T) {
	svc, _, _, formID := newAttemptFixture(t, 30)
	ctx := context.Background()
	responseID := uuid.New()

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: responseID, TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	attempt, err := svc.Resume(ctx, formID, "a@example.com", responseID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if attempt.Email != "a@example.com" {
		t.Errorf("resumed wrong attempt: %s", attempt.Email)
	}

	// An unknown response ID reads as a missing attempt.
	if _, err := svc.Resume(ctx, formID, "a@example.com", uuid.New()); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound for unknown response ID, got %v", err)
	}

	// Another candidate cannot resume this attempt through its response ID.
	if _, err := svc.Resume(ctx, formID, "b@example.com", responseID); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound for foreign candidate, got %v", err)
	}
}

func TestStartAfterSubmitRejected(t *testing.T) {
	svc, store, _, formID := newAttemptFixture(t, 30)
	ctx := context.Background()

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.attempts["a@example.com"].Status = model.AttemptStatusSubmitted

	_, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	})
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	svc, store, _, formID := newAttemptFixture(t, 30)
	ctx := context.Background()
	answers := json.RawMessage(`{"f1":"yes"}`)

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := svc.Finalize(ctx, formID, "a@example.com", answers, false)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if first.Status != model.AttemptStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", first.Status)
	}

	second, err := svc.Finalize(ctx, formID, "a@example.com", json.RawMessage(`{"f1":"overwrite"}`), false)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	if store.finalizeCalls != 1 {
		t.Errorf("expected 1 finalize write, got %d", store.finalizeCalls)
	}
	if string(second.Answers) != string(answers) {
		t.Errorf("stored answers changed on repeat finalize: %s", second.Answers)
	}
}

func TestFinalizeLosingRaceReturnsWinner(t *testing.T) {
	svc, store, _, formID := newAttemptFixture(t, 30)
	ctx := context.Background()

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.loseRace = true

	attempt, err := svc.Finalize(ctx, formID, "a@example.com", json.RawMessage(`{}`), false)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if attempt.Status != model.AttemptStatusSubmitted {
		t.Errorf("expected winner's SUBMITTED record, got %s", attempt.Status)
	}
}

func TestFinalizeLateFlag(t *testing.T) {
	tests := []struct {
		name       string
		startedAgo time.Duration
		wantLate   bool
	}{
		{"well within time", 5 * time.Minute, false},
		{"just past duration, inside grace", 10*time.Minute + 500*time.Millisecond, false},
		{"past duration and grace", 10*time.Minute + 3*time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _, formID := newAttemptFixture(t, 10)
			ctx := context.Background()

			if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
				ResponseID: uuid.New(), TermsAccepted: true,
			}); err != nil {
				t.Fatalf("start: %v", err)
			}
			store.attempts["a@example.com"].StartedAt = time.Now().UTC().Add(-tt.startedAgo)

			attempt, err := svc.Finalize(ctx, formID, "a@example.com", json.RawMessage(`{}`), false)
			if err != nil {
				t.Fatalf("finalize: %v", err)
			}
			if attempt.Status != model.AttemptStatusSubmitted {
				t.Fatalf("late attempt must still be accepted, got %s", attempt.Status)
			}
			if store.lastLate != tt.wantLate {
				t.Errorf("late = %v, want %v", store.lastLate, tt.wantLate)
			}
		})
	}
}

func TestFinalizeSucceedsOnDeactivatedForm(t *testing.T) {
	svc, _, _, formID := newAttemptFixture(t, 30)
	ctx := context.Background()

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Deactivation blocks new logins, not in-flight submissions. A candidate
	// mid-attempt when the manager pulls the form can still finish.
	svc.forms.(*fakeFormStore).forms[formID].Status = model.FormStatusInactive

	attempt, err := svc.Finalize(ctx, formID, "a@example.com", json.RawMessage(`{}`), false)
	if err != nil {
		t.Fatalf("finalize on inactive form: %v", err)
	}
	if attempt.Status != model.AttemptStatusSubmitted {
		t.Errorf("expected SUBMITTED, got %s", attempt.Status)
	}
}

func TestFinalizeClearsWorkingState(t *testing.T) {
	svc, _, rdb, formID := newAttemptFixture(t, 30)
	ctx := context.Background()

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	answersKey := config.CacheKey.CandidateAnswersKey(formID.String(), "a@example.com")
	rdb.HSet(ctx, answersKey, "f1", "draft")

	if _, err := svc.Finalize(ctx, formID, "a@example.com", json.RawMessage(`{}`), false); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if n, _ := rdb.Exists(ctx, answersKey).Result(); n != 0 {
		t.Error("autosave hash should be cleared after finalization")
	}
	startKey := config.CacheKey.AttemptStartKey(formID.String(), "a@example.com")
	if n, _ := rdb.Exists(ctx, startKey).Result(); n != 0 {
		t.Error("cached start time should be cleared after finalization")
	}
}

func TestForcedFinalizeUsesAutosavedAnswers(t *testing.T) {
	svc, store, rdb, formID := newAttemptFixture(t, 30)
	ctx := context.Background()

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	fieldID := uuid.New().String()
	rdb.HSet(ctx, config.CacheKey.CandidateAnswersKey(formID.String(), "a@example.com"), fieldID, "partial answer")

	attempt, err := svc.ForcedFinalize(ctx, formID, "a@example.com")
	if err != nil {
		t.Fatalf("forced finalize: %v", err)
	}
	if attempt.Status != model.AttemptStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", attempt.Status)
	}
	if !strings.Contains(string(store.lastAnswers), fieldID) {
		t.Errorf("autosaved answer missing from forced submit payload: %s", store.lastAnswers)
	}
}

func TestForcedFinalizeQueuesRetryOnFailure(t *testing.T) {
	svc, store, rdb, formID := newAttemptFixture(t, 30)
	ctx := context.Background()

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.failFinalize = true

	if _, err := svc.ForcedFinalize(ctx, formID, "a@example.com"); err == nil {
		t.Fatal("expected error when the finalize write fails")
	}

	queued, err := rdb.LLen(ctx, config.WorkerKey.FinalizeRetryQueue).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if queued != 1 {
		t.Errorf("expected 1 retry job queued, got %d", queued)
	}
}

func TestStateFallsBackToDatabase(t *testing.T) {
	svc, store, rdb, formID := newAttemptFixture(t, 30)
	ctx := context.Background()

	if _, err := svc.Start(ctx, formID, "a@example.com", model.StartAttemptRequest{
		ResponseID: uuid.New(), TermsAccepted: true,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.attempts["a@example.com"].StartedAt = time.Now().UTC().Add(-10 * time.Minute)

	// Simulate a cache wipe: the state endpoint must recompute from the DB
	// row and heal the cache.
	rdb.FlushAll(ctx)

	state, err := svc.State(ctx, formID, "a@example.com")
	if err != nil {
		t.Fatalf("state: %v", err)
	}

	// 30 minute form, 10 elapsed: roughly 20 minutes remain.
	remaining := time.Duration(state.RemainingMs) * time.Millisecond
	if remaining < 19*time.Minute || remaining > 20*time.Minute {
		t.Errorf("remaining = %v, expected ~20m", remaining)
	}

	if n, _ := rdb.Exists(ctx, config.CacheKey.FormDurationKey(formID.String())).Result(); n != 1 {
		t.Error("duration cache should be self-healed after fallback")
	}
}

func TestStateMissingAttempt(t *testing.T) {
	svc, _, _, formID := newAttemptFixture(t, 30)

	_, err := svc.State(context.Background(), formID, "ghost@example.com")
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestSaveDraftAnswerQueuesPersistence(t *testing.T) {
	svc, _, rdb, formID := newAttemptFixture(t, 30)
	ctx := context.Background()
	fieldID := uuid.New().String()

	if err := svc.SaveDraftAnswer(ctx, formID, "a@example.com", fieldID, "draft text"); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	saved, err := rdb.HGet(ctx, config.CacheKey.CandidateAnswersKey(formID.String(), "a@example.com"), fieldID).Result()
	if err != nil {
		t.Fatalf("hget: %v", err)
	}
	if saved != "draft text" {
		t.Errorf("saved = %q, want %q", saved, "draft text")
	}

	if queued, _ := rdb.LLen(ctx, config.WorkerKey.PersistAnswersQueue).Result(); queued != 1 {
		t.Errorf("expected 1 persistence job queued, got %d", queued)
	}
}
