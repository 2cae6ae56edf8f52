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

// fakeFormLifecycleStore mimics the repository's transactional lifecycle:
// Delete cascades the form definition and its per-form storage together.
type fakeFormLifecycleStore struct {
	forms       map[uuid.UUID]*model.AssessmentForm
	hasAttempts bool
	deleted     []uuid.UUID
}

func newFakeFormStore(form *model.AssessmentForm) *fakeFormLifecycleStore {
	return &fakeFormLifecycleStore{forms: map[uuid.UUID]*model.AssessmentForm{form.ID: form}}
}

func (f *fakeFormLifecycleStore) GetByID(_ context.Context, id uuid.UUID) (*model.AssessmentForm, error) {
	form, ok := f.forms[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *form
	return &cp, nil
}

func (f *fakeFormLifecycleStore) Create(_ context.Context, form *model.AssessmentForm) error {
	form.ID = uuid.New()
	cp := *form
	f.forms[form.ID] = &cp
	return nil
}

func (f *fakeFormLifecycleStore) Clone(_ context.Context, sourceID uuid.UUID, label string) (*model.AssessmentForm, error) {
	source, ok := f.forms[sourceID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *source
	clone.ID = uuid.New()
	clone.Label = label
	f.forms[clone.ID] = &clone
	cp := clone
	return &cp, nil
}

func (f *fakeFormLifecycleStore) ListByManagerPaginated(_ context.Context, managerID, limit, offset int) ([]model.AssessmentForm, int, error) {
	var forms []model.AssessmentForm
	for _, form := range f.forms {
		if form.ManagerID == managerID {
			forms = append(forms, *form)
		}
	}
	return forms, len(forms), nil
}

func (f *fakeFormLifecycleStore) Update(_ context.Context, form *model.AssessmentForm) error {
	stored, ok := f.forms[form.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	*stored = *form
	return nil
}

func (f *fakeFormLifecycleStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.FormStatus) error {
	form, ok := f.forms[id]
	if !ok {
		return pgx.ErrNoRows
	}
	form.Status = status
	return nil
}

func (f *fakeFormLifecycleStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.forms[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.forms, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeFormLifecycleStore) HasAttempts(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.hasAttempts, nil
}

type fakeSubmissionStore struct{}

func (fakeSubmissionStore) ListByForm(_ context.Context, _ uuid.UUID, _, _ int) ([]model.CandidateAttempt, int, error) {
	return nil, 0, nil
}

func (fakeSubmissionStore) Review(_ context.Context, _ uuid.UUID, _ string, _ *float64, _ *string) error {
	return nil
}

func newFormFixture(t *testing.T) (*FormService, *fakeFormLifecycleStore, *redis.Client, uuid.UUID) {
	t.Helper()
	form := &model.AssessmentForm{
		ID:              uuid.New(),
		Label:           "Aptitude Round 1",
		DurationMinutes: 30,
		Status:          model.FormStatusActive,
		ManagerID:       1,
	}
	store := newFakeFormStore(form)
	rdb := newTestRedis(t)
	svc := NewFormService(store, fakeSubmissionStore{}, rdb, zerolog.Nop())
	return svc, store, rdb, form.ID
}

func TestDeleteCascadesWithAttempts(t *testing.T) {
	svc, store, rdb, formID := newFormFixture(t)
	ctx := context.Background()
	store.hasAttempts = true
	rdb.Set(ctx, config.CacheKey.FormDurationKey(formID.String()), 30, 0)

	// Attempts ride the form's cascade lifecycle: deleting the form takes
	// roster and submissions with it, it is never refused.
	if err := svc.Delete(ctx, formID, 1); err != nil {
		t.Fatalf("delete with attempts: %v", err)
	}

	if len(store.deleted) != 1 || store.deleted[0] != formID {
		t.Errorf("form not deleted: %v", store.deleted)
	}
	if n, _ := rdb.Exists(ctx, config.CacheKey.FormDurationKey(formID.String())).Result(); n != 0 {
		t.Error("duration cache should be cleared on delete")
	}
}

func TestDeleteRequiresOwnership(t *testing.T) {
	svc, store, _, formID := newFormFixture(t)

	err := svc.Delete(context.Background(), formID, 99)
	if !errors.Is(err, ErrNotFormOwner) {
		t.Fatalf("expected ErrNotFormOwner, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Error("form deleted despite ownership failure")
	}
}

func TestUpdateDurationLockedOnceAttemptsExist(t *testing.T) {
	svc, store, _, formID := newFormFixture(t)
	store.hasAttempts = true
	duration := 45

	_, err := svc.Update(context.Background(), formID, 1, model.UpdateFormRequest{DurationMinutes: &duration})
	if !errors.Is(err, ErrDurationLocked) {
		t.Fatalf("expected ErrDurationLocked, got %v", err)
	}
}

func TestUpdateDurationSyncsCache(t *testing.T) {
	svc, _, rdb, formID := newFormFixture(t)
	ctx := context.Background()
	duration := 45

	form, err := svc.Update(ctx, formID, 1, model.UpdateFormRequest{DurationMinutes: &duration})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if form.DurationMinutes != 45 {
		t.Errorf("duration = %d, want 45", form.DurationMinutes)
	}

	cached, err := rdb.Get(ctx, config.CacheKey.FormDurationKey(formID.String())).Result()
	if err != nil {
		t.Fatalf("cached duration missing: %v", err)
	}
	if cached != "45" {
		t.Errorf("cached duration = %s, want 45", cached)
	}
}

func TestCloneStartsInactive(t *testing.T) {
	svc, _, _, formID := newFormFixture(t)

	clone, err := svc.Clone(context.Background(), formID, 1, "Aptitude Round 2")
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.Status != model.FormStatusInactive {
		t.Errorf("clone status = %s, want INACTIVE", clone.Status)
	}
	if clone.ID == formID {
		t.Error("clone kept the source identifier")
	}
}
