package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// FinalizeRetryWorker replays forced submits that failed at the moment the
// warning threshold was crossed (typically a DB blip). The guarded UPDATE
// keeps the operation idempotent: if the candidate managed to submit in the
// meantime, the retry matches zero rows and the job is dropped.
type FinalizeRetryWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewFinalizeRetryWorker creates a new FinalizeRetryWorker.
func NewFinalizeRetryWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *FinalizeRetryWorker {
	return &FinalizeRetryWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "finalize_retry_worker").Logger(),
	}
}

type finalizeJob struct {
	FormID    string          `json:"form_id"`
	Email     string          `json:"email"`
	Answers   json.RawMessage `json:"answers"`
	Timestamp int64           `json:"timestamp"`
}

// Start begins the worker loop. Call in a goroutine.
func (w *FinalizeRetryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *FinalizeRetryWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.FinalizeRetryQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var job finalizeJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Str("data", result[1]).Msg("discarding malformed job")
		return
	}

	if err := w.finalize(ctx, &job); err != nil {
		w.log.Error().Err(err).
			Str("email", job.Email).
			Str("form_id", job.FormID).
			Msg("retry failed, requeueing in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.FinalizeRetryQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// finalize performs the guarded terminal UPDATE. The finish timestamp is the
// moment the threshold was crossed, not the retry time, so the recorded
// duration stays honest. Late is computed against the form's duration.
func (w *FinalizeRetryWorker) finalize(ctx context.Context, job *finalizeJob) error {
	formID, err := uuid.Parse(job.FormID)
	if err != nil {
		w.log.Error().Str("form_id", job.FormID).Msg("dropping job with invalid form ID")
		return nil
	}

	answers := job.Answers
	if len(answers) == 0 {
		answers = json.RawMessage(`{}`)
	}
	finishedAt := time.Unix(job.Timestamp, 0).UTC()

	tag, err := w.pool.Exec(ctx,
		`UPDATE form_attempts a
		 SET status = 'SUBMITTED',
		     answers = $3,
		     finished_at = $4,
		     duration_ms = (EXTRACT(EPOCH FROM ($4::timestamptz - a.started_at)) * 1000)::bigint,
		     late = ($4::timestamptz - a.started_at) > make_interval(mins => f.duration_minutes)
		 FROM assessment_forms f
		 WHERE f.id = a.form_id
		   AND a.form_id = $1 AND a.email = $2 AND a.status = 'NOT_SUBMITTED'`,
		formID, job.Email, answers, finishedAt,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		w.log.Debug().Str("email", job.Email).Msg("attempt already submitted, dropping retry")
		return nil
	}

	// Clear the attempt's cache state now that it is terminal.
	w.rdb.Del(ctx,
		config.CacheKey.CandidateAnswersKey(job.FormID, job.Email),
		config.CacheKey.AttemptStartKey(job.FormID, job.Email),
		config.CacheKey.CandidateSessionKey(job.FormID, job.Email),
	)

	w.log.Info().Str("email", job.Email).Str("form_id", job.FormID).Msg("forced submit replayed")
	return nil
}
