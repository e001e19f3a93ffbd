package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"shortcast/internal/models"
	"shortcast/internal/pipeline"
	"shortcast/internal/storage"
)

// Pool runs pipeline jobs in the background. Each worker polls for the
// oldest queued job and races the others for the claim; the conditional
// claim write guarantees a job is processed by at most one worker.
type Pool struct {
	jobs       *storage.JobRepository
	engine     *pipeline.Engine
	count      int
	interval   time.Duration
	staleAfter time.Duration
	stop       chan struct{}
	wg         sync.WaitGroup
}

// NewPool creates a worker pool. staleAfter is how long an in-flight job may
// go without a durable write before it is considered abandoned by a dead
// worker and eligible for reclaim.
func NewPool(jobs *storage.JobRepository, engine *pipeline.Engine, count int, interval, staleAfter time.Duration) *Pool {
	if count < 1 {
		count = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &Pool{
		jobs:       jobs,
		engine:     engine,
		count:      count,
		interval:   interval,
		staleAfter: staleAfter,
		stop:       make(chan struct{}),
	}
}

// Start launches the workers and the stale-job reclaimer.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.wg.Add(1)
	go p.runReclaimer(ctx)
	log.Printf("Worker pool started (%d workers)", p.count)
}

// Stop gracefully stops the pool, waiting for in-flight jobs.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
	log.Println("Worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.processNext(ctx, id)
		}
	}
}

func (p *Pool) processNext(ctx context.Context, id int) {
	job, err := p.jobs.NextQueued(ctx)
	if err != nil {
		log.Printf("Worker %d: error polling queue: %v", id, err)
		return
	}
	if job == nil {
		return // queue empty
	}

	if err := p.engine.Claim(ctx, job); err != nil {
		// Another worker got there first.
		if err != models.ErrTransitionConflict && err != models.ErrJobAlreadyTerminal {
			log.Printf("Worker %d: claim failed for job %s: %v", id, job.ID, err)
		}
		return
	}

	log.Printf("Worker %d: processing job %s", id, job.ID)
	p.engine.Run(ctx, job)
}

// runReclaimer periodically sweeps for jobs stranded mid-pipeline by a dead
// worker. Sweep start is staggered so a restarted process first gives its
// own previous incarnation's jobs the full staleness window.
func (p *Pool) runReclaimer(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.staleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.reclaimStale(ctx)
		}
	}
}

// reclaimStale resumes in-flight jobs whose last write is older than the
// staleness threshold. The reclaim write doubles as the claim: a competing
// reclaimer loses the conditional update and skips the job. Cancellation
// flags left behind by a dead worker resolve here too, since Engine.Run
// checks the flag before doing anything else.
func (p *Pool) reclaimStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.staleAfter)
	stale, err := p.jobs.ListStale(ctx, cutoff)
	if err != nil {
		log.Printf("Reclaimer: error scanning for stale jobs: %v", err)
		return
	}

	for i := range stale {
		job := &stale[i]
		if err := p.jobs.Reclaim(ctx, job); err != nil {
			if err != models.ErrTransitionConflict && err != models.ErrJobAlreadyTerminal {
				log.Printf("Reclaimer: reclaim failed for job %s: %v", job.ID, err)
			}
			continue
		}
		log.Printf("Reclaimer: resuming job %s from %s", job.ID, job.Stage)
		p.engine.Run(ctx, job)
	}
}
