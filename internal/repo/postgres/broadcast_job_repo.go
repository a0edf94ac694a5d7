package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/enums"
	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

type BroadcastJobRepo struct {
	pool *pgxpool.Pool
}

const broadcastJobColumns = `
	id,
	title,
	text,
	filter,
	total,
	sent,
	failed,
	status,
	created_at,
	started_at,
	finished_at,
	COALESCE(image_key, ''),
	custom_buttons,
	has_image,
	has_buttons`

func NewBroadcastJobRepo(pool *pgxpool.Pool) *BroadcastJobRepo {
	return &BroadcastJobRepo{pool: pool}
}

// ListRecent returns up to limit jobs, newest first.
func (r *BroadcastJobRepo) ListRecent(ctx context.Context, limit int) ([]model.BroadcastJob, error) {
	if r.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+broadcastJobColumns+`
FROM broadcast_jobs
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list broadcast jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]model.BroadcastJob, 0, limit)
	for rows.Next() {
		job, err := scanBroadcastJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan broadcast job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate broadcast jobs: %w", err)
	}

	return jobs, nil
}

func (r *BroadcastJobRepo) GetByID(ctx context.Context, id int64) (model.BroadcastJob, error) {
	if r.pool == nil {
		return model.BroadcastJob{}, ErrNotConfigured
	}

	job, err := scanBroadcastJob(r.pool.QueryRow(ctx, `
SELECT`+broadcastJobColumns+`
FROM broadcast_jobs
WHERE id = $1
`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BroadcastJob{}, ErrNotFound
		}
		return model.BroadcastJob{}, fmt.Errorf("get broadcast job: %w", err)
	}

	return job, nil
}

// CreateWithRecipients inserts a queued job and one pending recipient per
// entry in a single transaction.
func (r *BroadcastJobRepo) CreateWithRecipients(ctx context.Context, job model.BroadcastJob, recipients []model.BroadcastRecipient) (model.BroadcastJob, error) {
	if r.pool == nil {
		return model.BroadcastJob{}, ErrNotConfigured
	}

	filter, err := json.Marshal(job.Payload)
	if err != nil {
		return model.BroadcastJob{}, fmt.Errorf("encode broadcast filter: %w", err)
	}
	var buttons any
	if len(job.CustomButtons) > 0 {
		data, err := json.Marshal(job.CustomButtons)
		if err != nil {
			return model.BroadcastJob{}, fmt.Errorf("encode broadcast buttons: %w", err)
		}
		buttons = string(data)
	}

	var created model.BroadcastJob
	err = WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO broadcast_jobs (
	title,
	text,
	filter,
	total,
	status,
	image_key,
	custom_buttons,
	has_image,
	has_buttons
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING`+broadcastJobColumns,
			job.Title,
			job.Text,
			string(filter),
			len(recipients),
			enums.JobStatusQueued,
			nullableString(job.ImageKey),
			buttons,
			job.ImageKey != "",
			len(job.CustomButtons) > 0,
		)
		var scanErr error
		created, scanErr = scanBroadcastJob(row)
		if scanErr != nil {
			return fmt.Errorf("insert broadcast job: %w", scanErr)
		}

		rowsToCopy := make([][]any, 0, len(recipients))
		for _, recipient := range recipients {
			rowsToCopy = append(rowsToCopy, []any{
				created.ID,
				recipient.TelegramID,
				nullableString(recipient.BotUserID),
				enums.RecipientStatusPending,
			})
		}
		if _, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"broadcast_recipients"},
			[]string{"job_id", "telegram_id", "bot_user_id", "status"},
			pgx.CopyFromRows(rowsToCopy),
		); err != nil {
			return fmt.Errorf("insert broadcast recipients: %w", err)
		}

		return nil
	})
	if err != nil {
		return model.BroadcastJob{}, err
	}

	return created, nil
}

// TransitionStatus moves a job to next only when its current status is one of
// from. It returns ErrNotFound for a missing job and ErrStatusConflict when the
// job exists in another status.
func (r *BroadcastJobRepo) TransitionStatus(ctx context.Context, id int64, from []enums.JobStatus, next enums.JobStatus) (model.BroadcastJob, error) {
	if r.pool == nil {
		return model.BroadcastJob{}, ErrNotConfigured
	}

	job, err := scanBroadcastJob(r.pool.QueryRow(ctx, `
UPDATE broadcast_jobs
SET
	status = $3,
	finished_at = CASE WHEN $3 IN ('cancelled', 'done', 'failed') THEN NOW() ELSE finished_at END
WHERE id = $1
	AND status = ANY($2)
RETURNING`+broadcastJobColumns, id, statusStrings(from), string(next)))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.BroadcastJob{}, fmt.Errorf("transition broadcast job: %w", err)
	}

	if exists, existsErr := r.exists(ctx, id); existsErr != nil {
		return model.BroadcastJob{}, existsErr
	} else if !exists {
		return model.BroadcastJob{}, ErrNotFound
	}
	return model.BroadcastJob{}, ErrStatusConflict
}

// Delete removes a job and its recipients when the job is in one of allowed.
func (r *BroadcastJobRepo) Delete(ctx context.Context, id int64, allowed []enums.JobStatus) error {
	if r.pool == nil {
		return ErrNotConfigured
	}

	result, err := r.pool.Exec(ctx, `
DELETE FROM broadcast_jobs
WHERE id = $1
	AND status = ANY($2)
`, id, statusStrings(allowed))
	if err != nil {
		return fmt.Errorf("delete broadcast job: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func (r *BroadcastJobRepo) ListFailedRecipients(ctx context.Context, jobID int64, limit int) ([]model.BroadcastRecipient, error) {
	if r.pool == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT
	r.id,
	r.job_id,
	r.telegram_id,
	COALESCE(r.bot_user_id, ''),
	r.status,
	COALESCE(r.error, ''),
	r.sent_at,
	COALESCE(u.name, '')
FROM broadcast_recipients r
LEFT JOIN bot_users u ON u.id = r.bot_user_id
WHERE r.job_id = $1
	AND r.status = 'failed'
ORDER BY r.id
LIMIT $2
`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed recipients: %w", err)
	}
	defer rows.Close()

	recipients := make([]model.BroadcastRecipient, 0)
	for rows.Next() {
		recipient, err := scanBroadcastRecipient(rows, true)
		if err != nil {
			return nil, fmt.Errorf("scan failed recipient: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed recipients: %w", err)
	}

	return recipients, nil
}

func (r *BroadcastJobRepo) RecipientStats(ctx context.Context, jobID int64) (model.RecipientStats, error) {
	if r.pool == nil {
		return model.RecipientStats{}, ErrNotConfigured
	}

	var stats model.RecipientStats
	err := r.pool.QueryRow(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'sent'),
	COUNT(*) FILTER (WHERE status = 'failed'),
	COUNT(*) FILTER (WHERE status = 'pending')
FROM broadcast_recipients
WHERE job_id = $1
`, jobID).Scan(&stats.Total, &stats.Sent, &stats.Failed, &stats.Pending)
	if err != nil {
		return model.RecipientStats{}, fmt.Errorf("count broadcast recipients: %w", err)
	}

	return stats, nil
}

// CancelOlderThan cancels queued or running jobs created before the cutoff.
func (r *BroadcastJobRepo) CancelOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, ErrNotConfigured
	}

	result, err := r.pool.Exec(ctx, `
UPDATE broadcast_jobs
SET
	status = 'cancelled',
	finished_at = NOW()
WHERE status IN ('queued', 'running')
	AND created_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cancel old broadcast jobs: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteFinishedOlderThan removes done, cancelled and failed jobs created before
// the cutoff and returns how many went away plus the image keys they referenced.
func (r *BroadcastJobRepo) DeleteFinishedOlderThan(ctx context.Context, cutoff time.Time) (int64, []string, error) {
	if r.pool == nil {
		return 0, nil, ErrNotConfigured
	}

	rows, err := r.pool.Query(ctx, `
DELETE FROM broadcast_jobs
WHERE status IN ('done', 'cancelled', 'failed')
	AND created_at < $1
RETURNING COALESCE(image_key, '')
`, cutoff.UTC())
	if err != nil {
		return 0, nil, fmt.Errorf("delete finished broadcast jobs: %w", err)
	}
	defer rows.Close()

	var (
		deleted   int64
		imageKeys []string
	)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return 0, nil, fmt.Errorf("scan deleted broadcast job: %w", err)
		}
		deleted++
		if key != "" {
			imageKeys = append(imageKeys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterate deleted broadcast jobs: %w", err)
	}

	return deleted, imageKeys, nil
}

// ListFinishedOlderThan returns finished jobs created before the cutoff, oldest first.
func (r *BroadcastJobRepo) ListFinishedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.BroadcastJob, error) {
	if r.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+broadcastJobColumns+`
FROM broadcast_jobs
WHERE status IN ('done', 'cancelled', 'failed')
	AND created_at < $1
ORDER BY created_at ASC, id ASC
LIMIT $2
`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list finished broadcast jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]model.BroadcastJob, 0)
	for rows.Next() {
		job, err := scanBroadcastJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan broadcast job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finished broadcast jobs: %w", err)
	}

	return jobs, nil
}

func (r *BroadcastJobRepo) PauseRunning(ctx context.Context) (int64, error) {
	if r.pool == nil {
		return 0, ErrNotConfigured
	}

	result, err := r.pool.Exec(ctx, `
UPDATE broadcast_jobs
SET status = 'paused'
WHERE status = 'running'
`)
	if err != nil {
		return 0, fmt.Errorf("pause running broadcast jobs: %w", err)
	}

	return result.RowsAffected(), nil
}

// NextProcessable returns the oldest queued or running job.
func (r *BroadcastJobRepo) NextProcessable(ctx context.Context) (model.BroadcastJob, error) {
	if r.pool == nil {
		return model.BroadcastJob{}, ErrNotConfigured
	}

	job, err := scanBroadcastJob(r.pool.QueryRow(ctx, `
SELECT`+broadcastJobColumns+`
FROM broadcast_jobs
WHERE status IN ('queued', 'running')
ORDER BY created_at ASC, id ASC
LIMIT 1
`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BroadcastJob{}, ErrNotFound
		}
		return model.BroadcastJob{}, fmt.Errorf("get next broadcast job: %w", err)
	}

	return job, nil
}

// MarkRunning moves a queued job to running. Already running jobs are left as is.
func (r *BroadcastJobRepo) MarkRunning(ctx context.Context, id int64) error {
	if r.pool == nil {
		return ErrNotConfigured
	}

	result, err := r.pool.Exec(ctx, `
UPDATE broadcast_jobs
SET
	status = 'running',
	started_at = COALESCE(started_at, NOW())
WHERE id = $1
	AND status IN ('queued', 'running')
`, id)
	if err != nil {
		return fmt.Errorf("mark broadcast job running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStatusConflict
	}

	return nil
}

func (r *BroadcastJobRepo) PendingRecipients(ctx context.Context, jobID int64, limit int) ([]model.BroadcastRecipient, error) {
	if r.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := r.pool.Query(ctx, `
SELECT
	id,
	job_id,
	telegram_id,
	COALESCE(bot_user_id, ''),
	status,
	COALESCE(error, ''),
	sent_at
FROM broadcast_recipients
WHERE job_id = $1
	AND status = 'pending'
ORDER BY id
LIMIT $2
`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending recipients: %w", err)
	}
	defer rows.Close()

	recipients := make([]model.BroadcastRecipient, 0, limit)
	for rows.Next() {
		recipient, err := scanBroadcastRecipient(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan pending recipient: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending recipients: %w", err)
	}

	return recipients, nil
}

// MarkRecipientSent resolves a pending recipient as sent and bumps the job counter.
func (r *BroadcastJobRepo) MarkRecipientSent(ctx context.Context, jobID, recipientID int64) error {
	return r.resolveRecipient(ctx, jobID, recipientID, enums.RecipientStatusSent, "")
}

// MarkRecipientFailed resolves a pending recipient as failed and bumps the job counter.
func (r *BroadcastJobRepo) MarkRecipientFailed(ctx context.Context, jobID, recipientID int64, reason string) error {
	return r.resolveRecipient(ctx, jobID, recipientID, enums.RecipientStatusFailed, reason)
}

func (r *BroadcastJobRepo) resolveRecipient(ctx context.Context, jobID, recipientID int64, status enums.RecipientStatus, reason string) error {
	if r.pool == nil {
		return ErrNotConfigured
	}

	return WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
UPDATE broadcast_recipients
SET
	status = $3,
	error = $4,
	sent_at = CASE WHEN $3 = 'sent' THEN NOW() ELSE sent_at END
WHERE id = $2
	AND job_id = $1
	AND status = 'pending'
`, jobID, recipientID, string(status), nullableString(reason))
		if err != nil {
			return fmt.Errorf("update broadcast recipient: %w", err)
		}
		if result.RowsAffected() == 0 {
			return nil
		}

		counter := "sent"
		if status == enums.RecipientStatusFailed {
			counter = "failed"
		}
		if _, err := tx.Exec(ctx, `
UPDATE broadcast_jobs
SET `+counter+` = `+counter+` + 1
WHERE id = $1
`, jobID); err != nil {
			return fmt.Errorf("update broadcast job counters: %w", err)
		}

		return nil
	})
}

// FinishIfResolved marks a running job done once every recipient is resolved.
func (r *BroadcastJobRepo) FinishIfResolved(ctx context.Context, jobID int64) (bool, error) {
	if r.pool == nil {
		return false, ErrNotConfigured
	}

	result, err := r.pool.Exec(ctx, `
UPDATE broadcast_jobs
SET
	status = 'done',
	finished_at = NOW()
WHERE id = $1
	AND status = 'running'
	AND sent + failed >= total
`, jobID)
	if err != nil {
		return false, fmt.Errorf("finish broadcast job: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *BroadcastJobRepo) exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM broadcast_jobs WHERE id = $1)
`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check broadcast job exists: %w", err)
	}
	return exists, nil
}

func scanBroadcastJob(row pgx.Row) (model.BroadcastJob, error) {
	var (
		job     model.BroadcastJob
		status  string
		filter  []byte
		buttons []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Text,
		&filter,
		&job.Total,
		&job.Sent,
		&job.Failed,
		&status,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.ImageKey,
		&buttons,
		&job.HasImage,
		&job.HasButtons,
	); err != nil {
		return model.BroadcastJob{}, err
	}
	job.Status = enums.JobStatus(status)

	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &job.Payload); err != nil {
			return model.BroadcastJob{}, fmt.Errorf("decode broadcast filter: %w", err)
		}
	}
	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &job.CustomButtons); err != nil {
			return model.BroadcastJob{}, fmt.Errorf("decode broadcast buttons: %w", err)
		}
	}

	return job, nil
}

func scanBroadcastRecipient(rows pgx.Rows, withName bool) (model.BroadcastRecipient, error) {
	var (
		recipient model.BroadcastRecipient
		status    string
	)
	dest := []any{
		&recipient.ID,
		&recipient.JobID,
		&recipient.TelegramID,
		&recipient.BotUserID,
		&status,
		&recipient.Error,
		&recipient.SentAt,
	}
	if withName {
		dest = append(dest, &recipient.UserName)
	}
	if err := rows.Scan(dest...); err != nil {
		return model.BroadcastRecipient{}, err
	}
	recipient.Status = enums.RecipientStatus(status)
	return recipient, nil
}

func statusStrings(statuses []enums.JobStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
