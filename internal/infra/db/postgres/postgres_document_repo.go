package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *documentRepo {
	return &documentRepo{pool: pool}
}

const documentColumns = `id, status, progress, current_operation, processing_error,
ocr_text, confidence_score, metadata, external_task_id, created_at, updated_at`

func (r *documentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(ex.QueryRow(ctx, q, id))
}

func (r *documentRepo) Save(ctx context.Context, tx repository.Tx, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = time.Now()

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO documents (id, status, progress, current_operation, processing_error,
  ocr_text, confidence_score, metadata, external_task_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  progress = EXCLUDED.progress,
  current_operation = EXCLUDED.current_operation,
  processing_error = EXCLUDED.processing_error,
  ocr_text = EXCLUDED.ocr_text,
  confidence_score = EXCLUDED.confidence_score,
  metadata = EXCLUDED.metadata,
  external_task_id = EXCLUDED.external_task_id,
  updated_at = EXCLUDED.updated_at;`

	_, err = ex.Exec(ctx, q,
		doc.ID, string(doc.Status), doc.Progress, doc.CurrentOperation, doc.ProcessingError,
		doc.OCRText, doc.ConfidenceScore, meta, doc.ExternalTaskID, doc.CreatedAt, doc.UpdatedAt)
	return err
}

// UpdateGuarded is a single compare-and-set UPDATE keyed on the expected
// statuses and task id. RowsAffected tells the caller whether it won; losing
// is not an error, it is how duplicate concurrent callbacks are serialized.
func (r *documentRepo) UpdateGuarded(ctx context.Context, doc *model.Document, guard repository.Guard) (bool, error) {
	if len(guard.Statuses) == 0 {
		return false, domain.ErrInvalidArgument
	}
	doc.UpdatedAt = time.Now()

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}

	statuses := make([]string, len(guard.Statuses))
	for i, s := range guard.Statuses {
		statuses[i] = string(s)
	}

	q := `
UPDATE documents SET
  status = $2,
  progress = $3,
  current_operation = $4,
  processing_error = $5,
  ocr_text = $6,
  confidence_score = $7,
  metadata = $8,
  external_task_id = $9,
  updated_at = $10
WHERE id = $1 AND status = ANY($11)`
	args := []interface{}{
		doc.ID, string(doc.Status), doc.Progress, doc.CurrentOperation, doc.ProcessingError,
		doc.OCRText, doc.ConfidenceScore, meta, doc.ExternalTaskID, doc.UpdatedAt,
		statuses,
	}
	if !guard.AnyTask {
		q += ` AND external_task_id = $12`
		args = append(args, guard.TaskID)
	}

	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var doc model.Document
	var status string
	var meta []byte
	err := row.Scan(
		&doc.ID, &status, &doc.Progress, &doc.CurrentOperation, &doc.ProcessingError,
		&doc.OCRText, &doc.ConfidenceScore, &meta, &doc.ExternalTaskID,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	doc.Status = model.ProcessingStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &doc, nil
}
