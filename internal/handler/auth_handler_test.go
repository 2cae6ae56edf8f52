package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

type fakeManagerDirectory struct{}

func (fakeManagerDirectory) GetByID(_ context.Context, _ int) (*model.Manager, error) {
	return nil, pgx.ErrNoRows
}

func (fakeManagerDirectory) GetByEmail(_ context.Context, _ string) (*model.Manager, error) {
	return nil, pgx.ErrNoRows
}

type fakeRosterDirectory struct {
	entry *model.RosterEntry
}

func (f fakeRosterDirectory) GetForLogin(_ context.Context, _ uuid.UUID, email string) (*model.RosterEntry, error) {
	if f.entry == nil || f.entry.Email != email {
		return nil, pgx.ErrNoRows
	}
	return f.entry, nil
}

type fakeFormDirectory struct {
	form *model.AssessmentForm
}

func (f fakeFormDirectory) Get(_ context.Context, _ uuid.UUID) (*model.AssessmentForm, error) {
	if f.form == nil {
		return nil, pgx.ErrNoRows
	}
	return f.form, nil
}

type fakeAttemptDirectory struct {
	attempt *model.CandidateAttempt
}

func (f fakeAttemptDirectory) Get(_ context.Context, _ uuid.UUID, _ string) (*model.CandidateAttempt, error) {
	if f.attempt == nil {
		return nil, service.ErrAttemptNotFound
	}
	return f.attempt, nil
}

// envelope mirrors the response wrapper for assertions.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code response.ErrCode `json:"code"`
	} `json:"error"`
}

func newLoginFixture(t *testing.T, attempt *model.CandidateAttempt) (*gin.Engine, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	formID := uuid.New()
	cfg := &config.Config{
		JWTSecret:          "test-secret",
		CandidateJWTExpiry: 40 * time.Minute,
		BcryptCost:         4,
		GinMode:            gin.TestMode,
	}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	h := NewAuthHandler(
		cfg,
		service.NewAuthService(cfg, rdb),
		fakeManagerDirectory{},
		fakeRosterDirectory{entry: &model.RosterEntry{
			FormID: formID,
			Name:   "Ana Lintang",
			Email:  "a@example.com",
			Mobile: "081234567890",
		}},
		fakeFormDirectory{form: &model.AssessmentForm{ID: formID, Status: model.FormStatusActive}},
		fakeAttemptDirectory{attempt: attempt},
	)

	router := gin.New()
	router.POST("/api/v1/auth/candidate/login", h.CandidateLogin)
	return router, formID
}

func postLogin(t *testing.T, router *gin.Engine, formID uuid.UUID, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"form_id":%q,"email":"a@example.com","password":%q}`, formID, password)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/candidate/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCandidateLoginIssuesToken(t *testing.T) {
	router, formID := newLoginFixture(t, nil)

	w := postLogin(t, router, formID, "081234567890")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.AccessToken == "" {
		t.Error("access token missing from the response body")
	}

	// The same token also travels as an HTTP-only cookie for browser clients.
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.CandidateCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("candidate cookie not set")
	}
	if cookie.Value != data.AccessToken {
		t.Error("cookie and body carry different tokens")
	}
	if !cookie.HttpOnly {
		t.Error("candidate cookie must be HTTP-only")
	}
}

func TestCandidateLoginRejectsSubmittedAttempt(t *testing.T) {
	router, formID := newLoginFixture(t, &model.CandidateAttempt{
		Email:  "a@example.com",
		Status: model.AttemptStatusSubmitted,
	})

	// Correct credentials, but the attempt is terminal: no further sessions.
	w := postLogin(t, router, formID, "081234567890")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403; body %s", w.Code, w.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error == nil || env.Error.Code != response.ErrAlreadySubmitted {
		t.Errorf("error = %+v, want %s", env.Error, response.ErrAlreadySubmitted)
	}
}

func TestCandidateLoginWrongSecret(t *testing.T) {
	router, formID := newLoginFixture(t, nil)

	w := postLogin(t, router, formID, "000000000000")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error == nil || env.Error.Code != response.ErrInvalidCredentials {
		t.Errorf("error = %+v, want %s", env.Error, response.ErrInvalidCredentials)
	}
}
