// Package agent runs the background worker that drains the agent job
// queue: claiming jobs, dispatching on type, and recording the outcome.
package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamie/pipecanvas/internal/config"
	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/llm"
)

// Handler processes one claimed job and returns its JSON result.
type Handler func(ctx context.Context, job *db.AgentJob) ([]byte, error)

// Agent polls the job queue with a pool of workers and dispatches
// claimed jobs to type-specific handlers.
type Agent struct {
	db       *db.DB
	llm      llm.Client // nil when no API key is configured
	workers  int
	poll     time.Duration
	handlers map[string]Handler
	identity string
}

// New creates an Agent. The LLM client may be nil; handlers that need
// it fail their jobs with a descriptive error instead of crashing.
func New(database *db.DB, llmClient llm.Client, cfg *config.AgentConfig) *Agent {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "agent"
	}

	a := &Agent{
		db:       database,
		llm:      llmClient,
		workers:  cfg.Workers,
		poll:     time.Duration(cfg.PollSeconds) * time.Second,
		identity: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
	a.handlers = map[string]Handler{
		db.JobTypeMarketingCampaign: a.handleMarketingCampaign,
		db.JobTypeChurnCheck:        a.handleChurnCheck,
		db.JobTypeWeeklyDigest:      a.handleWeeklyDigest,
	}
	return a
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	log.Printf("agent %s starting %d workers (poll %s)", a.identity, a.workers, a.poll)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < a.workers; i++ {
		worker := fmt.Sprintf("%s-w%d", a.identity, i)
		g.Go(func() error {
			return a.workerLoop(ctx, worker)
		})
	}
	return g.Wait()
}

// workerLoop claims and processes jobs until the context is cancelled.
// An empty queue or a transient claim error just waits out the poll
// interval.
func (a *Agent) workerLoop(ctx context.Context, worker string) error {
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		job, err := a.db.ClaimNextJob(ctx, "", worker)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("%s: claim failed: %v", worker, err)
		} else if job != nil {
			a.process(ctx, worker, job)
			// Drain eagerly while the queue has work.
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// process runs one job through its handler. Panics and handler errors
// both mark the job failed; there is no requeue.
func (a *Agent) process(ctx context.Context, worker string, job *db.AgentJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: job %s panicked: %v", worker, job.ID, r)
			if _, err := a.db.FailJob(ctx, job.ID, fmt.Sprintf("panic: %v", r)); err != nil {
				log.Printf("%s: failed to record panic for job %s: %v", worker, job.ID, err)
			}
		}
	}()

	handler, ok := a.handlers[job.Type]
	if !ok {
		if _, err := a.db.FailJob(ctx, job.ID, fmt.Sprintf("unknown job type: %s", job.Type)); err != nil {
			log.Printf("%s: failed to fail job %s: %v", worker, job.ID, err)
		}
		return
	}

	start := time.Now()
	result, err := handler(ctx, job)
	if err != nil {
		log.Printf("%s: job %s (%s) failed after %s: %v", worker, job.ID, job.Type, time.Since(start), err)
		if _, failErr := a.db.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			log.Printf("%s: failed to record failure for job %s: %v", worker, job.ID, failErr)
		}
		return
	}

	if _, err := a.db.CompleteJob(ctx, job.ID, result); err != nil {
		log.Printf("%s: failed to complete job %s: %v", worker, job.ID, err)
		return
	}
	log.Printf("%s: job %s (%s) completed in %s", worker, job.ID, job.Type, time.Since(start))
}
