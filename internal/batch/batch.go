// Package batch enhances many classes concurrently. Each worker owns a
// Repository, so class definitions are never shared between goroutines.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/olehluchkiv/enhancer/internal/classpath"
	"github.com/olehluchkiv/enhancer/internal/enhancer"
)

// Failure is a class whose enhancement was aborted.
type Failure struct {
	Class   string             `yaml:"class" json:"class"`
	Code    enhancer.ErrorCode `yaml:"code" json:"code"`
	Message string             `yaml:"message" json:"message"`
}

// Report collects the outcome of a batch. Results and Failures follow the
// order of the input names.
type Report struct {
	RunID    string             `yaml:"run_id" json:"run_id"`
	Started  time.Time          `yaml:"started" json:"started"`
	Finished time.Time          `yaml:"finished" json:"finished"`
	Results  []*enhancer.Result `yaml:"results" json:"results"`
	Failures []Failure          `yaml:"failures,omitempty" json:"failures,omitempty"`
}

// Count returns the number of results with status s.
func (r *Report) Count(s enhancer.Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// OK reports whether no class failed.
func (r *Report) OK() bool { return len(r.Failures) == 0 }

// Options configures a Runner.
type Options struct {
	Workers  int
	Enhancer enhancer.Options
}

// Runner fans class names out to a bounded set of enhancers.
type Runner struct {
	path   *classpath.SearchPath
	opts   Options
	ledger enhancer.Ledger
	logger *slog.Logger
}

// NewRunner creates a runner over path. A run id is generated when
// opts.Enhancer.RunID is empty. l may be nil.
func NewRunner(path *classpath.SearchPath, opts Options, l enhancer.Ledger, logger *slog.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Enhancer.RunID == "" {
		opts.Enhancer.RunID = uuid.NewString()
	}
	return &Runner{path: path, opts: opts, ledger: l, logger: logger}
}

// RunID identifies the runner's batch in logs and the ledger.
func (r *Runner) RunID() string { return r.opts.Enhancer.RunID }

// Run enhances names. A failing class does not stop the others and
// nothing already written is rolled back. The returned error is only
// non-nil when ctx is cancelled; the partial report is returned with it.
func (r *Runner) Run(ctx context.Context, names []string) (*Report, error) {
	rep := &Report{RunID: r.RunID(), Started: time.Now()}
	logger := r.logger.With("run_id", rep.RunID)
	logger.Info("batch started", "classes", len(names), "workers", r.opts.Workers)

	pool := make(chan *enhancer.Enhancer, r.opts.Workers)
	for i := 0; i < r.opts.Workers; i++ {
		repo := classpath.NewRepository(r.path, r.logger)
		pool <- enhancer.New(repo, r.opts.Enhancer, r.ledger, r.logger)
	}

	results := make([]*enhancer.Result, len(names))
	failures := make([]*Failure, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, name := range names {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e := <-pool
			defer func() { pool <- e }()

			res, err := e.Run(gctx, name)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if res != nil {
				results[i] = res
			}
			if err != nil {
				f := &Failure{Class: name, Code: enhancer.CodeOf(err), Message: err.Error()}
				failures[i] = f
			}
			return nil
		})
	}
	err := g.Wait()

	for i := range names {
		if results[i] != nil {
			rep.Results = append(rep.Results, results[i])
		}
		if failures[i] != nil {
			rep.Failures = append(rep.Failures, *failures[i])
		}
	}
	rep.Finished = time.Now()
	logger.Info("batch finished",
		"enhanced", rep.Count(enhancer.StatusEnhanced),
		"skipped", rep.Count(enhancer.StatusSkipped),
		"failed", len(rep.Failures),
		"duration", rep.Finished.Sub(rep.Started))
	if err == nil {
		err = ctx.Err()
	}
	return rep, err
}
