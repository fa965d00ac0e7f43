package optimization

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Solve after Close.
var ErrPoolClosed = errors.New("optimizer pool closed")

type solveJob struct {
	mu        []float64
	cov       [][]float64
	maxWeight float64
	result    chan Solution
}

// Pool runs MVOptimizer solves on a fixed set of worker goroutines so
// CPU-bound work stays off request and fetch goroutines.
type Pool struct {
	optimizer *MVOptimizer
	jobs      chan solveJob
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPool starts workers goroutines (at least one) solving with opt.
func NewPool(opt *MVOptimizer, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		optimizer: opt,
		jobs:      make(chan solveJob),
		stop:      make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case job := <-p.jobs:
			job.result <- p.optimizer.Optimize(job.mu, job.cov, job.maxWeight)
		}
	}
}

// Solve hands the problem to a worker and waits for its solution.
func (p *Pool) Solve(ctx context.Context, mu []float64, cov [][]float64, maxWeight float64) (Solution, error) {
	job := solveJob{mu: mu, cov: cov, maxWeight: maxWeight, result: make(chan Solution, 1)}

	select {
	case <-ctx.Done():
		return Solution{}, ctx.Err()
	case <-p.stop:
		return Solution{}, ErrPoolClosed
	case p.jobs <- job:
	}

	select {
	case <-ctx.Done():
		return Solution{}, ctx.Err()
	case sol := <-job.result:
		return sol, nil
	}
}

// Close stops the workers after their current solve.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()
}
