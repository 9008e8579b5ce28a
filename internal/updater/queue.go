// Package updater runs "update_sitemap" calls off the request path.
package updater

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romangod6/pro-sitemaps-connect/internal/models"
	"github.com/romangod6/pro-sitemaps-connect/internal/prosite"
	"github.com/romangod6/pro-sitemaps-connect/internal/utils"
)

const StatusPublish = "publish"

var (
	ErrQueueFull   = errors.New("update queue is full")
	ErrQueueClosed = errors.New("update queue is closed")
)

// ShouldUpdate is true when a post enters the published state.
func ShouldUpdate(newStatus, oldStatus string) bool {
	return newStatus == StatusPublish && oldStatus != StatusPublish
}

// Transition describes a post status change reported by the site.
type Transition struct {
	PostID    string `json:"post_id"`
	NewStatus string `json:"new_status" binding:"required"`
	OldStatus string `json:"old_status"`
}

type Job struct {
	ID         uuid.UUID
	Transition Transition
	QueuedAt   time.Time
}

// OptionsLoader returns the current options when a job runs.
type OptionsLoader interface {
	Load(ctx context.Context) (*models.Options, error)
}

// Updater is the part of the API client the queue needs.
type Updater interface {
	UpdateSitemap(ctx context.Context, opts *models.Options) *prosite.Result
}

type Queue struct {
	jobs    chan Job
	workers int
	options OptionsLoader
	client  Updater
	logger  *utils.Logger

	mutex  sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewQueue(workers, size int, options OptionsLoader, client Updater, logger *utils.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	return &Queue{
		jobs:    make(chan Job, size),
		workers: workers,
		options: options,
		client:  client,
		logger:  logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-q.jobs:
					if !ok {
						return
					}
					q.run(ctx, workerID, job)
				}
			}
		}(i)
	}
}

// Submit enqueues one update without blocking.
func (q *Queue) Submit(t Transition) (Job, error) {
	job := Job{ID: uuid.New(), Transition: t, QueuedAt: time.Now()}

	q.mutex.RLock()
	defer q.mutex.RUnlock()
	if q.closed {
		return job, ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.LogDebug("Queued sitemap update %s for post %s", job.ID, t.PostID)
		return job, nil
	default:
		return job, ErrQueueFull
	}
}

// Stop rejects new jobs, lets workers drain the queue and waits for them.
func (q *Queue) Stop() {
	q.mutex.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mutex.Unlock()
	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) run(ctx context.Context, workerID int, job Job) {
	opts, err := q.options.Load(ctx)
	if err != nil {
		q.logger.LogError("Worker %d: update %s: %v", workerID, job.ID, err)
		return
	}
	if !opts.UpdateSitemap {
		q.logger.LogDebug("Worker %d: update %s skipped, auto update is off", workerID, job.ID)
		return
	}
	if !opts.HasAPIInfo() {
		q.logger.LogDebug("Worker %d: update %s skipped, API settings missing", workerID, job.ID)
		return
	}

	result := q.client.UpdateSitemap(ctx, opts)
	if result.Failed() {
		q.logger.LogError("Worker %d: update %s for post %s failed: %s", workerID, job.ID, job.Transition.PostID, result.Error)
		return
	}
	q.logger.LogInfo("Worker %d: update %s for post %s sent", workerID, job.ID, job.Transition.PostID)
}
