package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/jmoiron/sqlx"
	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/log"
	"github.com/livepeer/retention-engine/model"
)

// JobStore is the Postgres-backed persistence layer for Job and
// PipelineStepState records (spec §4.1). Every status write is validated
// against model.CanTransition before it hits the database, and updates use
// optimistic concurrency on updated_at to guard against racing workers.
type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: sqlx.NewDb(db, "postgres")}
}

type jobRow struct {
	ID                       string         `db:"id"`
	OwnerUserID              string         `db:"owner_user_id"`
	Status                   string         `db:"status"`
	Progress                 int            `db:"progress"`
	InputObjectKey           string         `db:"input_object_key"`
	OutputObjectKey          string         `db:"output_object_key"`
	VerticalOutputObjectKeys []byte         `db:"vertical_output_object_keys"`
	InputDurationSeconds     float64        `db:"input_duration_seconds"`
	RequestedQuality         string         `db:"requested_quality"`
	FinalQuality             string         `db:"final_quality"`
	WatermarkApplied         bool           `db:"watermark_applied"`
	RetentionScore           float64        `db:"retention_score"`
	OptimizationNotes        []byte         `db:"optimization_notes"`
	RenderSettings           []byte         `db:"render_settings"`
	Analysis                 []byte         `db:"analysis"`
	PriorityLevel            int            `db:"priority_level"`
	Error                    sql.NullString `db:"error"`
	CreatedAt                time.Time      `db:"created_at"`
	UpdatedAt                time.Time      `db:"updated_at"`
}

func (r *jobRow) toModel() (*model.Job, error) {
	j := &model.Job{
		ID:                   r.ID,
		OwnerUserID:          r.OwnerUserID,
		Status:               model.Status(r.Status),
		Progress:             r.Progress,
		InputObjectKey:       r.InputObjectKey,
		OutputObjectKey:      r.OutputObjectKey,
		InputDurationSeconds: r.InputDurationSeconds,
		RequestedQuality:     r.RequestedQuality,
		FinalQuality:         r.FinalQuality,
		WatermarkApplied:     r.WatermarkApplied,
		RetentionScore:       r.RetentionScore,
		PriorityLevel:        r.PriorityLevel,
		Error:                r.Error.String,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if len(r.VerticalOutputObjectKeys) > 0 {
		if err := json.Unmarshal(r.VerticalOutputObjectKeys, &j.VerticalOutputObjectKeys); err != nil {
			return nil, fmt.Errorf("decoding vertical_output_object_keys: %w", err)
		}
	}
	if len(r.OptimizationNotes) > 0 {
		if err := json.Unmarshal(r.OptimizationNotes, &j.OptimizationNotes); err != nil {
			return nil, fmt.Errorf("decoding optimization_notes: %w", err)
		}
	}
	if len(r.RenderSettings) > 0 {
		if err := json.Unmarshal(r.RenderSettings, &j.RenderSettings); err != nil {
			return nil, fmt.Errorf("decoding render_settings: %w", err)
		}
	}
	if len(r.Analysis) > 0 {
		if err := json.Unmarshal(r.Analysis, &j.Analysis); err != nil {
			return nil, fmt.Errorf("decoding analysis: %w", err)
		}
	}
	return j, nil
}

// Get loads a job by id.
func (s *JobStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `select * from jobs where id = $1`, jobID)
	if err == sql.ErrNoRows {
		return nil, xerrors.NewObjectNotFoundError(fmt.Sprintf("job %s not found", jobID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	return row.toModel()
}

// UpdateOpts controls optimistic concurrency on Update.
type UpdateOpts struct {
	ExpectedUpdatedAt *time.Time
}

// Update applies a partial patch to a job, validating any status transition
// against model.CanTransition and optionally guarding the write against a
// concurrent update via ExpectedUpdatedAt (spec §4.1, §8.3).
func (s *JobStore) Update(ctx context.Context, jobID string, patch map[string]interface{}, opts UpdateOpts) error {
	if newStatusRaw, ok := patch["status"]; ok {
		newStatus := model.Status(fmt.Sprintf("%v", newStatusRaw))
		current, err := s.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if !model.CanTransition(current.Status, newStatus) {
			return xerrors.InvalidStatusTransition(string(current.Status), string(newStatus))
		}
	}

	set := "updated_at = now()"
	args := []interface{}{}
	argN := 1
	for col, val := range patch {
		argN++
		set += fmt.Sprintf(", %s = $%d", col, argN)
		args = append(args, val)
	}

	query := fmt.Sprintf(`update jobs set %s where id = $1`, set)
	args = append([]interface{}{jobID}, args...)

	if opts.ExpectedUpdatedAt != nil {
		argN++
		query += fmt.Sprintf(" and updated_at = $%d", argN)
		args = append(args, *opts.ExpectedUpdatedAt)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", jobID, err)
	}
	if opts.ExpectedUpdatedAt != nil {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking update result for job %s: %w", jobID, err)
		}
		if n == 0 {
			return xerrors.ErrJobUpdateConflict
		}
	}
	return nil
}

// UpdateStepState upserts a step's progress row, ignoring legacy aliases by
// resolving the step name to canonical form first (spec §3, §4.2).
func (s *JobStore) UpdateStepState(ctx context.Context, jobID string, step model.StepName, patch map[string]interface{}) error {
	canon := model.CanonicalStepName(step)
	_, err := s.db.ExecContext(ctx, `
		insert into pipeline_step_state (job_id, step, status, attempts, retries, started_at, completed_at, last_error, meta)
		values ($1, $2, coalesce($3, 'pending'), coalesce($4, 0), coalesce($5, 0), $6, $7, $8, $9)
		on conflict (job_id, step) do update set
			status = coalesce($3, pipeline_step_state.status),
			attempts = coalesce($4, pipeline_step_state.attempts),
			retries = coalesce($5, pipeline_step_state.retries),
			started_at = coalesce($6, pipeline_step_state.started_at),
			completed_at = coalesce($7, pipeline_step_state.completed_at),
			last_error = coalesce($8, pipeline_step_state.last_error),
			meta = coalesce($9, pipeline_step_state.meta)
	`,
		jobID, canon,
		patch["status"], patch["attempts"], patch["retries"],
		patch["started_at"], patch["completed_at"], patch["last_error"], patch["meta"],
	)
	if err != nil {
		return fmt.Errorf("updating step state for job %s step %s: %w", jobID, canon, err)
	}
	return nil
}

// FindImmediatelyRecoverable returns queued/uploading jobs that already made
// progress and have an input to resume from, regardless of how recently they
// were touched: a crash right after upload shouldn't wait out the stale
// threshold before resuming (spec §4.2 recovery rule 1).
func (s *JobStore) FindImmediatelyRecoverable(ctx context.Context, limit int) ([]*model.Job, error) {
	statuses := make([]string, len(model.ImmediateRecoverableStatuses))
	for i, st := range model.ImmediateRecoverableStatuses {
		statuses[i] = string(st)
	}
	query, args, err := sqlx.In(`
		select * from jobs
		where status in (?) and progress >= 1 and input_object_key <> ''
		order by updated_at asc
		limit ?`, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("building immediately recoverable jobs query: %w", err)
	}
	return s.selectRecoverable(ctx, query, args)
}

// FindStaleInProgress returns jobs that were already past upload when a
// worker died, provided they've sat untouched past staleThreshold (spec
// §4.2 recovery rule 2). Callers must reset status/progress before
// re-enqueuing these.
func (s *JobStore) FindStaleInProgress(ctx context.Context, staleThreshold time.Duration, limit int) ([]*model.Job, error) {
	statuses := make([]string, len(model.InProgressRecoverableStatuses))
	for i, st := range model.InProgressRecoverableStatuses {
		statuses[i] = string(st)
	}
	query, args, err := sqlx.In(`
		select * from jobs
		where status in (?) and updated_at < ?
		order by updated_at asc
		limit ?`, statuses, time.Now().Add(-staleThreshold), limit)
	if err != nil {
		return nil, fmt.Errorf("building stale in-progress jobs query: %w", err)
	}
	return s.selectRecoverable(ctx, query, args)
}

func (s *JobStore) selectRecoverable(ctx context.Context, query string, args []interface{}) ([]*model.Job, error) {
	var rows []jobRow
	query = s.db.Rebind(query)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading recoverable jobs: %w", err)
	}
	jobs := make([]*model.Job, 0, len(rows))
	for i := range rows {
		j, err := rows[i].toModel()
		if err != nil {
			log.LogNoJobID("skipping malformed recoverable job row", "err", err, "id", rows[i].ID)
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

type summaryRow struct {
	ID             string    `db:"id"`
	OwnerUserID    string    `db:"owner_user_id"`
	RetentionScore float64   `db:"retention_score"`
	Analysis       []byte    `db:"analysis"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ListRecentCompleted returns a user's most recent completed jobs, used by
// the calibration store to seed per-user strategy weighting (spec §4.11).
func (s *JobStore) ListRecentCompleted(ctx context.Context, userID string, limit int) ([]model.JobSummary, error) {
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, `
		select id, owner_user_id, retention_score, analysis, updated_at
		from jobs
		where owner_user_id = $1 and status = $2
		order by updated_at desc
		limit $3`, userID, string(model.StatusCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent completed jobs for user %s: %w", userID, err)
	}

	out := make([]model.JobSummary, 0, len(rows))
	for _, r := range rows {
		summary := model.JobSummary{
			ID:             r.ID,
			UserID:         r.OwnerUserID,
			RetentionScore: r.RetentionScore,
			CompletedAt:    r.UpdatedAt,
		}
		if len(r.Analysis) > 0 {
			_ = json.Unmarshal(r.Analysis, &summary.Analysis)
			if strategy, ok := summary.Analysis["strategy"].(string); ok {
				summary.Strategy = strategy
			}
			if format, ok := summary.Analysis["content_format"].(string); ok {
				summary.ContentFormat = format
			}
		}
		out = append(out, summary)
	}
	return out, nil
}
