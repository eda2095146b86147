// Package enhancer runs the per-class enhancement pipeline: resolve the
// class, decide whether it is an entity that still needs enhancing,
// instrument its setters and persistence accessors, and write it out.
package enhancer

import (
	"context"
	"log/slog"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/classpath"
	"github.com/olehluchkiv/enhancer/internal/instrument"
	"github.com/olehluchkiv/enhancer/internal/ledger"
)

// Status is the outcome of a successful Run.
type Status string

const (
	StatusEnhanced Status = "enhanced"
	StatusSkipped  Status = "skipped"
)

// ReasonLedger marks a class skipped because its bytes are recorded as the
// output of an earlier enhancement.
const ReasonLedger analyzer.Reason = "ledger"

// Result describes what Run did to one class.
type Result struct {
	Class     string            `yaml:"class" json:"class"`
	Status    Status            `yaml:"status" json:"status"`
	Reason    analyzer.Reason   `yaml:"reason,omitempty" json:"reason,omitempty"`
	Detail    string            `yaml:"detail,omitempty" json:"detail,omitempty"`
	Chain     []string          `yaml:"chain,omitempty" json:"chain,omitempty"`
	Edits     []instrument.Edit `yaml:"edits,omitempty" json:"edits,omitempty"`
	Output    string            `yaml:"output,omitempty" json:"output,omitempty"`
	InputSHA  string            `yaml:"input_sha,omitempty" json:"input_sha,omitempty"`
	OutputSHA string            `yaml:"output_sha,omitempty" json:"output_sha,omitempty"`
}

// Count returns the number of edits of kind k.
func (r *Result) Count(k instrument.EditKind) int {
	n := 0
	for _, e := range r.Edits {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Ledger is the persistent record of earlier outcomes. *ledger.Store
// implements it.
type Ledger interface {
	IsEnhancedOutput(class, digest string) (bool, error)
	Record(e ledger.Entry) error
}

// Options configures an Enhancer.
type Options struct {
	Conventions  analyzer.Conventions
	Hooks        instrument.Hooks
	OutputDir    string
	Strict       bool
	TagInterface bool
	RunID        string
}

// Enhancer processes classes from one Repository. Like the Repository it
// is not safe for concurrent use.
type Enhancer struct {
	repo    *classpath.Repository
	checker *analyzer.Checker
	stages  []instrument.Instrumenter
	writer  *Writer
	ledger  Ledger
	runID   string
	logger  *slog.Logger
	done    map[string]string // class -> digest of the bytes we wrote
}

// New creates an Enhancer. l may be nil.
func New(repo *classpath.Repository, opts Options, l Ledger, logger *slog.Logger) *Enhancer {
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}
	return &Enhancer{
		repo:    repo,
		checker: analyzer.NewChecker(repo, opts.Conventions, opts.Strict, logger),
		stages: []instrument.Instrumenter{
			instrument.NewSetterInstrumenter(repo, opts.Conventions, opts.Hooks, logger),
			instrument.NewAccessorRestrictor(opts.Conventions, logger),
		},
		writer: NewWriter(opts.OutputDir, opts.Conventions, opts.TagInterface, logger),
		ledger: l,
		runID:  opts.RunID,
		logger: logger,
		done:   make(map[string]string),
	}
}

// Run enhances the named class. Skips are reported through the Result.
// Errors other than context cancellation are *Error values; apart from a
// failed ledger update, which comes back together with the Result, an
// error means nothing was written for the class.
func (e *Enhancer) Run(ctx context.Context, name string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := e.repo.Resolve(name)
	if err != nil {
		return nil, e.fail(name, "", resolutionError(name, err))
	}
	res := &Result{Class: c.Name, InputSHA: c.Digest}

	if skip, err := e.alreadyWritten(c); err != nil {
		return nil, e.fail(c.Name, c.Digest, err)
	} else if skip {
		res.Status = StatusSkipped
		res.Reason = ReasonLedger
		e.logger.Info("class has already been enhanced", "class", c.Name, "digest", c.Digest)
		return res, e.record(res)
	}

	v, err := e.checker.Check(c)
	if err != nil {
		return nil, e.fail(c.Name, c.Digest, newError(ResolutionFailure, c.Name, "class hierarchy could not be resolved", err))
	}
	res.Chain = v.Chain
	if !v.Eligible {
		res.Status = StatusSkipped
		res.Reason = v.Reason
		res.Detail = v.Detail
		return res, e.record(res)
	}

	e.logger.Info("enhancing entity", "class", c.Name, "origin", c.Origin)
	// From here on c.File is edited in place. Until the output is written
	// every exit evicts the class so a retry starts from the loaded bytes.
	edits, err := instrument.Apply(c, e.stages...)
	if err != nil {
		e.repo.Evict(c.Name)
		return nil, e.fail(c.Name, c.Digest, instrumentError(c.Name, err))
	}
	if err := ctx.Err(); err != nil {
		e.repo.Evict(c.Name)
		return nil, err
	}
	res.Edits = edits

	path, digest, err := e.writer.Write(c)
	if err != nil {
		e.repo.Evict(c.Name)
		return nil, e.fail(c.Name, c.Digest, err)
	}
	res.Status = StatusEnhanced
	res.Output = path
	res.OutputSHA = digest
	e.done[c.Name] = digest

	e.logger.Info("class enhanced", "class", c.Name, "output", path,
		"setters", res.Count(instrument.SetterWrapped),
		"accessors", res.Count(instrument.AccessorRestricted))
	return res, e.record(res)
}

func (e *Enhancer) alreadyWritten(c *classpath.Class) (bool, error) {
	if digest, ok := e.done[c.Name]; ok && digest == c.Digest {
		return true, nil
	}
	if e.ledger == nil {
		return false, nil
	}
	ok, err := e.ledger.IsEnhancedOutput(c.Name, c.Digest)
	if err != nil {
		return false, newError(IOFailure, c.Name, "ledger lookup failed", err)
	}
	return ok, nil
}

func (e *Enhancer) record(res *Result) error {
	if e.ledger == nil {
		return nil
	}
	status := ledger.StatusSkipped
	if res.Status == StatusEnhanced {
		status = ledger.StatusEnhanced
	}
	err := e.ledger.Record(ledger.Entry{
		Class:     res.Class,
		InputSHA:  res.InputSHA,
		OutputSHA: res.OutputSHA,
		Status:    status,
		Reason:    string(res.Reason),
		RunID:     e.runID,
	})
	if err != nil {
		return newError(IOFailure, res.Class, "ledger update failed", err)
	}
	return nil
}

// fail logs err and records the failure. A ledger error while recording a
// failure is logged, not returned.
func (e *Enhancer) fail(class, digest string, err error) error {
	code := CodeOf(err)
	e.logger.Error("enhancement failed", "class", class, "code", string(code), "error", err)
	if e.ledger != nil && digest != "" {
		rerr := e.ledger.Record(ledger.Entry{
			Class:    class,
			InputSHA: digest,
			Status:   ledger.StatusFailed,
			Reason:   string(code),
			RunID:    e.runID,
		})
		if rerr != nil {
			e.logger.Warn("failed to record failure", "class", class, "error", rerr)
		}
	}
	return err
}
