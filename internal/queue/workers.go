package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
)

// WorkerPool polls the queue and dispatches messages to registered
// handlers. Each worker runs its own poll loop; starts are staggered so
// workers do not hammer Redis in lockstep. A handler runs under the
// configured per-job timeout; failures go through the queue's retry path.
type WorkerPool struct {
	queue        interfaces.Queue
	handlers     map[string]interfaces.MessageHandler
	handlersMu   sync.RWMutex
	maxWorkers   int
	pollInterval time.Duration
	jobTimeout   time.Duration
	logger       arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a worker pool over the queue
func NewWorkerPool(queue interfaces.Queue, config *common.QueueConfig, logger arbor.ILogger) *WorkerPool {
	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:        queue,
		handlers:     make(map[string]interfaces.MessageHandler),
		maxWorkers:   maxWorkers,
		pollInterval: common.ParseDurationOr(config.PollInterval, time.Second),
		jobTimeout:   common.ParseDurationOr(config.JobTimeout, 300*time.Second),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler binds a message type to its handler
func (p *WorkerPool) RegisterHandler(messageType string, handler interfaces.MessageHandler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[messageType] = handler
}

// Start launches the workers with staggered starts
func (p *WorkerPool) Start() {
	p.logger.Info().
		Int("max_workers", p.maxWorkers).
		Dur("poll_interval", p.pollInterval).
		Dur("job_timeout", p.jobTimeout).
		Msg("Starting worker pool")

	stagger := p.pollInterval / time.Duration(p.maxWorkers)
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i, time.Duration(i)*stagger)
	}
}

// Shutdown stops polling and waits for in-flight handlers
func (p *WorkerPool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool shutdown complete")
}

func (p *WorkerPool) worker(id int, initialDelay time.Duration) {
	defer p.wg.Done()

	select {
	case <-time.After(initialDelay):
	case <-p.ctx.Done():
		return
	}

	p.logger.Debug().Int("worker_id", id).Msg("Worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Int("worker_id", id).Msg("Worker stopping")
			return
		case <-ticker.C:
			p.drain(id)
		}
	}
}

// drain processes messages until the queue is empty or shutdown begins
func (p *WorkerPool) drain(workerID int) {
	for {
		if p.ctx.Err() != nil {
			return
		}
		msg, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			p.logger.Error().Err(err).Int("worker_id", workerID).Msg("Dequeue failed")
			return
		}
		if msg == nil {
			return
		}
		p.process(workerID, msg)
	}
}

func (p *WorkerPool) process(workerID int, msg *interfaces.QueueMessage) {
	p.handlersMu.RLock()
	handler, ok := p.handlers[msg.Type]
	p.handlersMu.RUnlock()
	if !ok {
		p.logger.Error().
			Str("message_id", msg.ID).
			Str("type", msg.Type).
			Msg("No handler registered, dead-lettering message")
		p.queue.Retry(p.ctx, &interfaces.QueueMessage{
			ID: msg.ID, Type: msg.Type, Payload: msg.Payload,
			Tries: msg.MaxTries, MaxTries: msg.MaxTries, CreatedAt: msg.CreatedAt,
		}, fmt.Errorf("no handler for message type %q", msg.Type))
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.jobTimeout)
	defer cancel()

	startTime := time.Now()
	err := handler(ctx, msg)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Str("type", msg.Type).
			Int("worker_id", workerID).
			Msg("Handler failed")
		if retryErr := p.queue.Retry(p.ctx, msg, err); retryErr != nil {
			p.logger.Error().Err(retryErr).Str("message_id", msg.ID).Msg("Retry handoff failed")
		}
		return
	}

	p.logger.Debug().
		Str("message_id", msg.ID).
		Str("type", msg.Type).
		Int("worker_id", workerID).
		Dur("duration", time.Since(startTime)).
		Msg("Message processed")
}
