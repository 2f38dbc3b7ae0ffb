package worker

import (
	"context"
	"fmt"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// panicResult is emitted in place of a job that panicked
type panicResult struct {
	job Job
	err error
}

func (r *panicResult) GetError() error { return r.err }

// Pool manages a fixed set of workers executing jobs concurrently
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool bound to parent; cancelling parent stops the workers
func NewPool(parent context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := p.execute(job)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// execute runs one job, converting a panic into an error result
func (p *Pool) execute(job Job) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = &panicResult{job: job, err: fmt.Errorf("job panicked: %v", rec)}
		}
	}()
	return job.Execute(p.ctx)
}

// Submit queues a job. It returns false when the pool has been shut down.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Results exposes results as they arrive; it is closed once the pool drains
func (p *Pool) Results() <-chan Result {
	return p.results
}

// CloseAndDrain stops accepting jobs and closes Results once every worker exits
func (p *Pool) CloseAndDrain() {
	close(p.jobQueue)
	go func() {
		p.wg.Wait()
		p.cancelFunc()
		p.closeResults()
	}()
}

// Wait waits for all jobs to complete and returns the results
func (p *Pool) Wait() []Result {
	p.CloseAndDrain()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}
	return results
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
