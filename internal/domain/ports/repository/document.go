package repository

import (
	"context"

	"ocr-processing-coordinator/internal/domain/model"
)

// Guard is the expectation a guarded update is conditioned on. The update
// applies only if the stored row still matches one of Statuses and, unless
// AnyTask is set, the recorded external task id equals TaskID.
type Guard struct {
	Statuses []model.ProcessingStatus
	TaskID   string
	AnyTask  bool
}

// DocumentRepository persists document processing records.
//
// UpdateGuarded is the concurrency-correctness primitive: it performs a single
// compare-and-set UPDATE keyed on (id, expected statuses, expected task id)
// and reports whether the row was changed. Duplicate concurrent callbacks race
// on it; exactly one wins.
type DocumentRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Document, error)
	Save(ctx context.Context, tx Tx, doc *model.Document) error
	UpdateGuarded(ctx context.Context, doc *model.Document, guard Guard) (bool, error)
}
