package web

import (
	"context"
	"io"
	"sync"
	"time"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type memDocumentRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Document
}

func newMemDocumentRepo() *memDocumentRepo {
	return &memDocumentRepo{store: make(map[string]*model.Document)}
}

func (m *memDocumentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d.Clone(), nil
}

func (m *memDocumentRepo) Save(ctx context.Context, tx repository.Tx, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[doc.ID] = doc.Clone()
	return nil
}

func (m *memDocumentRepo) UpdateGuarded(ctx context.Context, doc *model.Document, guard repository.Guard) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[doc.ID]
	if !ok {
		return false, nil
	}
	statusOK := false
	for _, s := range guard.Statuses {
		if cur.Status == s {
			statusOK = true
			break
		}
	}
	if !statusOK {
		return false, nil
	}
	if !guard.AnyTask && cur.ExternalTaskID != guard.TaskID {
		return false, nil
	}
	m.store[doc.ID] = doc.Clone()
	return true, nil
}

func (m *memDocumentRepo) get(id string) *model.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone()
	}
	return nil
}

type memJobQueue struct {
	mu       sync.Mutex
	retries  []*model.RetryJob
	indexing []*model.IndexingJob
	fences   map[string]bool
}

func newMemJobQueue() *memJobQueue {
	return &memJobQueue{fences: make(map[string]bool)}
}

func (q *memJobQueue) EnqueueDispatch(ctx context.Context, job *model.DispatchJob) error { return nil }

func (q *memJobQueue) DequeueDispatch(ctx context.Context, wait time.Duration) (*model.DispatchJob, error) {
	return nil, domain.ErrNotFound
}

func (q *memJobQueue) RequeueDispatch(ctx context.Context, job *model.DispatchJob, delay time.Duration) error {
	return nil
}

func (q *memJobQueue) DeadLetterDispatch(ctx context.Context, job *model.DispatchJob) error {
	return nil
}

func (q *memJobQueue) EnqueueRetry(ctx context.Context, job *model.RetryJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries = append(q.retries, job)
	return nil
}

func (q *memJobQueue) DequeueRetry(ctx context.Context, wait time.Duration) (*model.RetryJob, error) {
	return nil, domain.ErrNotFound
}

func (q *memJobQueue) EnqueueIndexing(ctx context.Context, job *model.IndexingJob, fence string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fences[fence] {
		return false, nil
	}
	q.fences[fence] = true
	q.indexing = append(q.indexing, job)
	return true, nil
}

type mockEngine struct {
	StatisticsFunc func(ctx context.Context) (*model.QueueStatistics, error)
	StuckFunc      func(ctx context.Context, timeout time.Duration) ([]model.StuckTask, error)
}

func (m *mockEngine) Submit(ctx context.Context, doc *model.Document) (string, error) {
	return "task-" + doc.ID, nil
}

func (m *mockEngine) QueueStatistics(ctx context.Context) (*model.QueueStatistics, error) {
	if m.StatisticsFunc != nil {
		return m.StatisticsFunc(ctx)
	}
	return &model.QueueStatistics{}, nil
}

func (m *mockEngine) StuckTasks(ctx context.Context, timeout time.Duration) ([]model.StuckTask, error) {
	if m.StuckFunc != nil {
		return m.StuckFunc(ctx, timeout)
	}
	return nil, nil
}
