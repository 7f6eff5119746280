package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mojiQAQ/petsphoto/internal/domain"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, pgx.Tx and infra.SQLRunner.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const jobColumns = `id, user_id, source_image_id, style_id, custom_prompt, status,
       result_image_url, error_message, credits_cost, provider,
       created_at, started_at, completed_at`

func scanJob(row pgx.Row) (domain.GenerationJob, error) {
	var j domain.GenerationJob
	var status string
	err := row.Scan(
		&j.ID,
		&j.UserID,
		&j.SourceImageID,
		&j.StyleID,
		&j.CustomPrompt,
		&status,
		&j.ResultImageURL,
		&j.ErrorMessage,
		&j.CreditsCost,
		&j.Provider,
		&j.CreatedAt,
		&j.StartedAt,
		&j.CompletedAt,
	)
	j.Status = domain.JobStatus(status)
	return j, err
}

const insertJob = `-- name: InsertJob :one
INSERT INTO generation_jobs (id, user_id, source_image_id, style_id, custom_prompt, status, credits_cost)
VALUES ($1, $2, $3, $4, $5, 'pending', $6)
RETURNING ` + jobColumns

type InsertJobParams struct {
	ID            string
	UserID        string
	SourceImageID string
	StyleID       string
	CustomPrompt  *string
	CreditsCost   int
}

func (q *Queries) InsertJob(ctx context.Context, arg InsertJobParams) (domain.GenerationJob, error) {
	row := q.db.QueryRow(ctx, insertJob,
		arg.ID,
		arg.UserID,
		arg.SourceImageID,
		arg.StyleID,
		arg.CustomPrompt,
		arg.CreditsCost,
	)
	return scanJob(row)
}

const getJob = `-- name: GetJob :one
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE id = $1`

func (q *Queries) GetJob(ctx context.Context, id string) (domain.GenerationJob, error) {
	return scanJob(q.db.QueryRow(ctx, getJob, id))
}

const startJob = `-- name: StartJob :execrows
UPDATE generation_jobs
SET status = 'processing', provider = $2, started_at = $3
WHERE id = $1 AND status = 'pending'`

// StartJob moves a pending job to processing. Zero rows means the job was
// not pending.
func (q *Queries) StartJob(ctx context.Context, id, provider string, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, startJob, id, provider, at)
	return tag.RowsAffected(), err
}

const completeJob = `-- name: CompleteJob :execrows
UPDATE generation_jobs
SET status = 'completed', result_image_url = $2, completed_at = $3
WHERE id = $1 AND status = 'processing'`

func (q *Queries) CompleteJob(ctx context.Context, id, resultURL string, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, completeJob, id, resultURL, at)
	return tag.RowsAffected(), err
}

const failJob = `-- name: FailJob :execrows
UPDATE generation_jobs
SET status = 'failed', error_message = $2, completed_at = $3
WHERE id = $1 AND status = 'processing'`

func (q *Queries) FailJob(ctx context.Context, id, message string, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, failJob, id, message, at)
	return tag.RowsAffected(), err
}

const listJobsByUser = `-- name: ListJobsByUser :many
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]domain.GenerationJob, error) {
	rows, err := q.db.Query(ctx, listJobsByUser, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, job)
	}
	return items, rows.Err()
}

const countJobsByUser = `-- name: CountJobsByUser :one
SELECT count(*) FROM generation_jobs WHERE user_id = $1`

func (q *Queries) CountJobsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, countJobsByUser, userID).Scan(&n)
	return n, err
}

const listStaleJobs = `-- name: ListStaleJobs :many
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE status = 'processing' AND started_at < $1
ORDER BY started_at
LIMIT $2`

func (q *Queries) ListStaleJobs(ctx context.Context, startedBefore time.Time, limit int) ([]domain.GenerationJob, error) {
	rows, err := q.db.Query(ctx, listStaleJobs, startedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, job)
	}
	return items, rows.Err()
}

const styleColumns = `id, name, COALESCE(description, ''), prompt_template, COALESCE(thumbnail_url, ''),
       sort_order, is_active, is_premium, created_at`

func scanStyle(row pgx.Row) (domain.GenerationStyle, error) {
	var s domain.GenerationStyle
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.PromptTemplate,
		&s.ThumbnailURL,
		&s.SortOrder,
		&s.IsActive,
		&s.IsPremium,
		&s.CreatedAt,
	)
	return s, err
}

const getStyle = `-- name: GetStyle :one
SELECT ` + styleColumns + `
FROM generation_styles
WHERE id = $1`

func (q *Queries) GetStyle(ctx context.Context, id string) (domain.GenerationStyle, error) {
	return scanStyle(q.db.QueryRow(ctx, getStyle, id))
}

const listActiveStyles = `-- name: ListActiveStyles :many
SELECT ` + styleColumns + `
FROM generation_styles
WHERE is_active
ORDER BY sort_order, id`

func (q *Queries) ListActiveStyles(ctx context.Context) ([]domain.GenerationStyle, error) {
	rows, err := q.db.Query(ctx, listActiveStyles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.GenerationStyle
	for rows.Next() {
		style, err := scanStyle(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, style)
	}
	return items, rows.Err()
}

const imageColumns = `id, user_id, filename, storage_path, file_size, width, height, mime_type, is_temp, created_at`

func scanImage(row pgx.Row) (domain.UploadedImage, error) {
	var img domain.UploadedImage
	err := row.Scan(
		&img.ID,
		&img.UserID,
		&img.Filename,
		&img.StoragePath,
		&img.FileSize,
		&img.Width,
		&img.Height,
		&img.MIMEType,
		&img.IsTemp,
		&img.CreatedAt,
	)
	return img, err
}

const insertImage = `-- name: InsertImage :one
INSERT INTO uploaded_images (id, user_id, filename, storage_path, file_size, width, height, mime_type, is_temp)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at`

func (q *Queries) InsertImage(ctx context.Context, img *domain.UploadedImage) error {
	return q.db.QueryRow(ctx, insertImage,
		img.ID,
		img.UserID,
		img.Filename,
		img.StoragePath,
		img.FileSize,
		img.Width,
		img.Height,
		img.MIMEType,
		img.IsTemp,
	).Scan(&img.CreatedAt)
}

const getImage = `-- name: GetImage :one
SELECT ` + imageColumns + `
FROM uploaded_images
WHERE id = $1`

func (q *Queries) GetImage(ctx context.Context, id string) (domain.UploadedImage, error) {
	return scanImage(q.db.QueryRow(ctx, getImage, id))
}

const getImageForUpdate = `-- name: GetImageForUpdate :one
SELECT ` + imageColumns + `
FROM uploaded_images
WHERE id = $1
FOR UPDATE`

func (q *Queries) GetImageForUpdate(ctx context.Context, id string) (domain.UploadedImage, error) {
	return scanImage(q.db.QueryRow(ctx, getImageForUpdate, id))
}

const clearImageTemp = `-- name: ClearImageTemp :exec
UPDATE uploaded_images SET is_temp = FALSE WHERE id = $1`

func (q *Queries) ClearImageTemp(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, clearImageTemp, id)
	return err
}

const getUser = `-- name: GetUser :one
SELECT id, email, credits, created_at FROM users WHERE id = $1`

func (q *Queries) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := q.db.QueryRow(ctx, getUser, id).Scan(&u.ID, &u.Email, &u.Credits, &u.CreatedAt)
	return u, err
}

const getUserForUpdate = `-- name: GetUserForUpdate :one
SELECT id, email, credits, created_at FROM users WHERE id = $1 FOR UPDATE`

func (q *Queries) GetUserForUpdate(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := q.db.QueryRow(ctx, getUserForUpdate, id).Scan(&u.ID, &u.Email, &u.Credits, &u.CreatedAt)
	return u, err
}

const setUserCredits = `-- name: SetUserCredits :exec
UPDATE users SET credits = $2 WHERE id = $1`

func (q *Queries) SetUserCredits(ctx context.Context, id string, credits int) error {
	_, err := q.db.Exec(ctx, setUserCredits, id, credits)
	return err
}

const insertCreditTransaction = `-- name: InsertCreditTransaction :one
INSERT INTO credit_transactions (id, user_id, type, amount, balance_before, balance_after, description, related_job_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at`

func (q *Queries) InsertCreditTransaction(ctx context.Context, tx *domain.CreditTransaction) error {
	return q.db.QueryRow(ctx, insertCreditTransaction,
		tx.ID,
		tx.UserID,
		string(tx.Type),
		tx.Amount,
		tx.BalanceBefore,
		tx.BalanceAfter,
		tx.Description,
		tx.RelatedJobID,
	).Scan(&tx.CreatedAt)
}

const countRefundsForJob = `-- name: CountRefundsForJob :one
SELECT count(*) FROM credit_transactions WHERE related_job_id = $1 AND type = 'refund'`

func (q *Queries) CountRefundsForJob(ctx context.Context, jobID string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, countRefundsForJob, jobID).Scan(&n)
	return n, err
}

const getIntegrationToken = `-- name: GetIntegrationToken :one
SELECT token FROM integration_tokens WHERE provider = $1`

func (q *Queries) GetIntegrationToken(ctx context.Context, provider string) (string, error) {
	var token string
	err := q.db.QueryRow(ctx, getIntegrationToken, provider).Scan(&token)
	return token, err
}

const upsertIntegrationToken = `-- name: UpsertIntegrationToken :exec
INSERT INTO integration_tokens (provider, token, properties, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (provider) DO UPDATE
SET token = EXCLUDED.token, properties = EXCLUDED.properties, updated_at = now()`

func (q *Queries) UpsertIntegrationToken(ctx context.Context, provider, token string, properties []byte) error {
	_, err := q.db.Exec(ctx, upsertIntegrationToken, provider, token, properties)
	return err
}
