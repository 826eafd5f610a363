// Package dispatch runs analysis requests on a fixed number of workers and
// hands every finished result to delivery.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
	"github.com/lueurxax/trend-digest-bot/internal/platform/worker"
	"github.com/lueurxax/trend-digest-bot/internal/process/analysis"
)

// Errors returned by Submit.
var (
	ErrNotStarted = errors.New("pool not started")
	ErrStopped    = errors.New("pool stopped")
)

// Runner executes one analysis request.
type Runner interface {
	Run(ctx context.Context, req analysis.Request) domain.AnalysisResult
}

// Deliverer sends a finished result to a chat.
type Deliverer interface {
	DeliverResult(ctx context.Context, chatID int64, result domain.AnalysisResult) error
}

// Job is an analysis request bound to the chat waiting for it.
type Job struct {
	ID      string
	ChatID  int64
	Request analysis.Request
}

// Pool is a bounded analysis worker pool.
type Pool struct {
	runner    Runner
	deliverer Deliverer
	workers   int
	jobs      chan Job
	logger    *zerolog.Logger

	mu      sync.Mutex
	started bool
	done    <-chan struct{}
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given worker count and queue size.
// Values below 1 fall back to one worker and an unbuffered queue.
func NewPool(runner Runner, deliverer Deliverer, workers, queueSize int, logger *zerolog.Logger) *Pool {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if workers < 1 {
		workers = 1
	}

	if queueSize < 0 {
		queueSize = 0
	}

	return &Pool{
		runner:    runner,
		deliverer: deliverer,
		workers:   workers,
		jobs:      make(chan Job, queueSize),
		logger:    logger,
	}
}

// Start launches the workers. They stop when ctx is canceled; queued jobs
// not yet picked up are dropped.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.started = true
	p.done = ctx.Done()

	for i := range p.workers {
		p.wg.Add(1)

		go p.work(ctx, i)
	}

	p.logger.Info().Int("workers", p.workers).Int("queue", cap(p.jobs)).Msg("analysis pool started")
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Submit queues a job, blocking while the queue is full.
// It returns the job id once the job is queued.
func (p *Pool) Submit(ctx context.Context, chatID int64, req analysis.Request) (string, error) {
	p.mu.Lock()
	started, done := p.started, p.done
	p.mu.Unlock()

	if !started {
		return "", ErrNotStarted
	}

	job := Job{ID: uuid.NewString(), ChatID: chatID, Request: req}

	select {
	case p.jobs <- job:
		observability.AnalysisQueueDepth.Set(float64(len(p.jobs)))

		p.logger.Debug().Str("job_id", job.ID).Int64("chat_id", chatID).Str("mode", req.Mode.String()).Msg("analysis queued")

		return job.ID, nil
	case <-done:
		return "", ErrStopped
	case <-ctx.Done():
		return "", fmt.Errorf("submit analysis: %w", ctx.Err())
	}
}

func (p *Pool) work(ctx context.Context, n int) {
	defer p.wg.Done()

	logger := p.logger.With().Int("worker", n).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			observability.AnalysisQueueDepth.Set(float64(len(p.jobs)))
			p.handle(ctx, job, &logger)
		}
	}
}

func (p *Pool) handle(ctx context.Context, job Job, logger *zerolog.Logger) {
	observability.AnalysisInFlight.Inc()
	defer observability.AnalysisInFlight.Dec()

	defer worker.RecoverPanic(logger, "analysis job")

	jobLogger := logger.With().Str("job_id", job.ID).Int64("chat_id", job.ChatID).Logger()

	result := p.runner.Run(ctx, job.Request)

	if err := p.deliverer.DeliverResult(ctx, job.ChatID, result); err != nil {
		jobLogger.Error().Err(err).Msg("failed to deliver analysis result")
		return
	}

	jobLogger.Info().Bool("success", result.Kind() == domain.ResultSuccess).Msg("analysis delivered")
}
