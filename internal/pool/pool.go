package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"avif-converter-go/internal/converter"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
)

// ConvertFunc converts one task. *converter.Unit's Convert method satisfies it.
type ConvertFunc func(ctx context.Context, task converter.Task) converter.Outcome

// Event reports one finished task to observers.
type Event struct {
	Done    int
	Total   int
	Outcome converter.Outcome
}

// Observer receives completion events. Observers are called from a single
// goroutine, one event at a time.
type Observer func(Event)

// Pool runs tasks on a fixed number of workers.
type Pool struct {
	workers int
	logger  *logrus.Logger
}

// New returns a Pool with the given parallelism. Values <= 0 select
// runtime.NumCPU().
func New(parallelism int, logger *logrus.Logger) *Pool {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	return &Pool{workers: parallelism, logger: logger}
}

// Workers returns the configured parallelism.
func (p *Pool) Workers() int {
	return p.workers
}

// Run converts every task and blocks until each one has an outcome. The
// result has exactly one outcome per task, at the task's input index. A
// panic inside fn becomes an internal failure, and tasks still queued when
// ctx is canceled become canceled failures.
func (p *Pool) Run(ctx context.Context, tasks []converter.Task, fn ConvertFunc, observers ...Observer) []converter.Outcome {
	if len(tasks) == 0 {
		return []converter.Outcome{}
	}

	numWorkers := min(p.workers, len(tasks))
	type job struct {
		index int
		task  converter.Task
	}
	type result struct {
		index int
		res   converter.Outcome
	}

	jobs := make(chan job, len(tasks))
	results := make(chan result, len(tasks))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- result{index: j.index, res: p.runOne(ctx, j.task, fn)}
			}
		}()
	}

	for i, task := range tasks {
		jobs <- job{index: i, task: task}
	}
	close(jobs)

	resArr := make([]converter.Outcome, len(tasks))
	for done := 1; done <= len(tasks); done++ {
		r := <-results
		resArr[r.index] = r.res
		for _, observe := range observers {
			observe(Event{Done: done, Total: len(tasks), Outcome: r.res})
		}
	}

	wg.Wait()
	return resArr
}

// runOne executes fn for a single task, turning cancellation and panics into
// failed outcomes.
func (p *Pool) runOne(ctx context.Context, task converter.Task, fn ConvertFunc) converter.Outcome {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return converter.Failed(task.SourcePath, converter.ErrorKindCanceled, err.Error()).
			WithTiming(start, time.Now())
	}

	var out converter.Outcome
	var pc panics.Catcher
	pc.Try(func() {
		out = fn(ctx, task)
	})

	if r := pc.Recovered(); r != nil {
		p.logger.WithFields(logrus.Fields{
			"file":  task.SourcePath,
			"stack": string(r.Stack),
		}).Errorf("Recovered panic during conversion: %v", r.Value)
		return converter.Failed(task.SourcePath, converter.ErrorKindInternal, fmt.Sprintf("panic: %v", r.Value)).
			WithTiming(start, time.Now())
	}
	return out
}
