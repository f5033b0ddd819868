// Package loader reloads cached table data into a database while foreign
// keys and triggers are out of the way.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/envsync/envsync/internal/database"
	"github.com/envsync/envsync/internal/schema"
	"github.com/envsync/envsync/internal/sequence"
)

// Target is the database a scheduler loads into.
type Target interface {
	sequence.Source

	Schema() string
	SchemaForeignKeys(ctx context.Context) ([]schema.TableConstraint, error)
	SchemaTriggers(ctx context.Context) ([]schema.Trigger, error)
	RowCount(ctx context.Context, table string) (int64, error)
	Load(ctx context.Context, table, path string) (int64, error)
	Truncate(ctx context.Context, table string, cascade bool) error
	DisableConstraint(ctx context.Context, c schema.TableConstraint) error
	EnableConstraint(ctx context.Context, c schema.TableConstraint) error
	DisableTrigger(ctx context.Context, t schema.Trigger) error
	EnableTrigger(ctx context.Context, t schema.Trigger) error
}

// pendingSource is implemented by targets that keep dropped constraints
// across runs.
type pendingSource interface {
	PendingConstraints() []schema.TableConstraint
}

// RetryExhaustedError is returned when deferred work is still failing after
// the retry budget.
type RetryExhaustedError struct {
	Operation string
	Tables    []string
	Attempts  int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts, still failing: %s",
		e.Operation, e.Attempts, strings.Join(e.Tables, ", "))
}

// Options configures a Scheduler.
type Options struct {
	MaxRetries      int // load passes, default 10
	PurgeMaxRetries int // purge passes, default 25
	EnableRetries   int // constraint enable passes, default 5

	// RefreshDB truncates each table before loading it; otherwise tables
	// that already hold rows are skipped.
	RefreshDB bool

	// FileFor returns the data file of a table.
	FileFor func(table string) string

	Logger   *slog.Logger
	OnStatus StatusCallback
}

// Scheduler runs the load state machine for one target.
type Scheduler struct {
	target Target
	opts   Options
	logger *slog.Logger
	status *Status
}

// NewScheduler creates a Scheduler for target.
func NewScheduler(target Target, opts Options) *Scheduler {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	if opts.PurgeMaxRetries <= 0 {
		opts.PurgeMaxRetries = 25
	}
	if opts.EnableRetries <= 0 {
		opts.EnableRetries = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{target: target, opts: opts, logger: opts.Logger}
}

func (s *Scheduler) notify() {
	s.status.ElapsedTime = time.Since(s.status.started)
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(s.status)
	}
}

func (s *Scheduler) setPhase(p Phase) {
	s.status.Phase = p
	s.logger.Debug("load phase", "phase", string(p), "attempt", s.status.Attempt)
	s.notify()
}

func (s *Scheduler) fail(err error) error {
	s.status.Errors = append(s.status.Errors, err.Error())
	s.setPhase(PhaseFailed)
	return err
}

// Run loads tables. Constraints and triggers of the schema are disabled
// first; tables failing to load are truncated and retried in later passes.
// Once every table is in, sequences are repaired and constraints and
// triggers are enabled again. The returned status is never nil.
func (s *Scheduler) Run(ctx context.Context, tables []string) (*Status, error) {
	s.status = newStatus(tables)
	s.setPhase(PhasePreparing)

	cons, err := s.target.SchemaForeignKeys(ctx)
	if err != nil {
		return s.status, s.fail(fmt.Errorf("getting foreign keys: %w", err))
	}
	triggers, err := s.target.SchemaTriggers(ctx)
	if err != nil {
		return s.status, s.fail(fmt.Errorf("getting triggers: %w", err))
	}
	for _, c := range cons {
		if err := s.target.DisableConstraint(ctx, c); err != nil {
			return s.status, s.fail(fmt.Errorf("disabling constraint %s: %w", c.Name, err))
		}
	}
	s.logger.Info("disabled constraints", "count", len(cons))
	for _, t := range triggers {
		if err := s.target.DisableTrigger(ctx, t); err != nil {
			return s.status, s.fail(fmt.Errorf("disabling trigger %s: %w", t.Name, err))
		}
	}
	s.logger.Info("disabled triggers", "count", len(triggers))

	// constraints dropped by an earlier, interrupted run come back too
	toEnable := cons
	if ps, ok := s.target.(pendingSource); ok {
		toEnable = lo.UniqBy(append(append([]schema.TableConstraint{}, cons...), ps.PendingConstraints()...),
			func(c schema.TableConstraint) string { return c.Key() })
	}

	pending, err := s.selectTables(ctx, Order(tables, cons))
	if err != nil {
		return s.status, s.fail(err)
	}

	for attempt := 1; ; attempt++ {
		s.status.Attempt = attempt
		if attempt == 1 {
			s.setPhase(PhaseLoading)
		} else {
			s.setPhase(PhaseRetrying)
		}

		failed, err := s.loadPass(ctx, pending, attempt)
		if err != nil {
			return s.status, s.fail(err)
		}
		if len(failed) == 0 {
			break
		}
		if attempt >= s.opts.MaxRetries {
			for _, t := range failed {
				s.status.table(t).State = TableFailed
			}
			s.logger.Error("max retries reached", "tables", failed, "attempts", attempt)
			if err := s.EnableConstraints(ctx, toEnable); err != nil {
				s.logger.Error("re-enabling constraints after failed load", "error", err)
				s.status.Errors = append(s.status.Errors, err.Error())
			}
			return s.status, s.fail(&RetryExhaustedError{Operation: "load", Tables: failed, Attempts: attempt})
		}
		s.logger.Info("retrying failed tables", "tables", failed, "attempt", attempt+1)
		pending = failed
	}

	s.setPhase(PhaseFinalizing)
	fixed, err := sequence.NewRepairer(s.target, s.logger).FixSequences(ctx, s.target.Schema())
	if err != nil {
		return s.status, s.fail(fmt.Errorf("fixing sequences: %w", err))
	}
	s.status.SequencesFixed = fixed

	if err := s.EnableConstraints(ctx, toEnable); err != nil {
		return s.status, s.fail(err)
	}
	for _, t := range triggers {
		if err := s.target.EnableTrigger(ctx, t); err != nil {
			return s.status, s.fail(fmt.Errorf("enabling trigger %s: %w", t.Name, err))
		}
	}
	s.logger.Info("enabled triggers", "count", len(triggers))

	s.setPhase(PhaseDone)
	return s.status, nil
}

// selectTables drops tables without a data file and, unless refreshing,
// tables that already hold rows.
func (s *Scheduler) selectTables(ctx context.Context, tables []string) ([]string, error) {
	var out []string
	for _, t := range tables {
		ts := s.status.table(t)
		if s.opts.FileFor != nil {
			if _, err := os.Stat(s.opts.FileFor(t)); err != nil {
				s.logger.Warn("no data file, skipping table", "table", t, "file", s.opts.FileFor(t))
				ts.State, ts.Reason = TableSkipped, "no data file"
				continue
			}
		}
		if !s.opts.RefreshDB {
			n, err := s.target.RowCount(ctx, t)
			if err != nil {
				return nil, fmt.Errorf("counting rows of %s: %w", t, err)
			}
			if n > 0 {
				s.logger.Info("table already has rows, skipping", "table", t, "rows", n)
				ts.State, ts.Reason, ts.Rows = TableSkipped, "not empty", n
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// loadPass tries each table once. Any load error defers the table after
// truncating what it left behind. Only a failed truncate stops the pass.
func (s *Scheduler) loadPass(ctx context.Context, tables []string, attempt int) ([]string, error) {
	var failed []string
	indent := strings.Repeat(" ", attempt*2)
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ts := s.status.table(t)
		ts.Attempts++

		if s.opts.RefreshDB {
			if err := s.target.Truncate(ctx, t, false); err != nil {
				return nil, fmt.Errorf("truncating %s before load: %w", t, err)
			}
		}

		s.logger.Info("importing table"+indent+t, "table", t, "attempt", attempt)
		path := ""
		if s.opts.FileFor != nil {
			path = s.opts.FileFor(t)
		}
		rows, err := s.target.Load(ctx, t, path)
		if err != nil {
			s.logger.Warn("load failed, deferring table", "table", t, "attempt", attempt, "error", err)
			ts.State, ts.Error = TableDeferred, err.Error()
			if terr := s.target.Truncate(ctx, t, false); terr != nil {
				return nil, fmt.Errorf("truncating failed load of %s: %w", t, terr)
			}
			failed = append(failed, t)
			s.notify()
			continue
		}
		ts.State, ts.Rows, ts.Error = TableLoaded, rows, ""
		s.logger.Debug("loaded table", "table", t, "rows", rows)
		s.notify()
	}
	return failed, nil
}

// EnableConstraints enables cons. A constraint failing on a foreign key
// violation is deferred and the deferred list retried, up to the enable
// retry budget. Any other error stops immediately.
func (s *Scheduler) EnableConstraints(ctx context.Context, cons []schema.TableConstraint) error {
	pending := cons
	for attempt := 1; ; attempt++ {
		var deferred []schema.TableConstraint
		for _, c := range pending {
			err := s.target.EnableConstraint(ctx, c)
			if err == nil {
				if s.status != nil {
					s.status.ConstraintsEnabled++
				}
				continue
			}
			if !database.IsForeignKeyViolation(err) {
				return fmt.Errorf("enabling constraint %s on %s: %w", c.Name, c.Table, err)
			}
			s.logger.Warn("constraint not enabled, deferring", "constraint", c.Name, "table", c.Table, "attempt", attempt, "error", err)
			deferred = append(deferred, c)
		}
		if len(deferred) == 0 {
			s.logger.Info("all constraints enabled", "count", len(cons))
			return nil
		}
		if attempt >= s.opts.EnableRetries {
			names := lo.Map(deferred, func(c schema.TableConstraint, _ int) string { return c.Name })
			return &RetryExhaustedError{Operation: "enable constraints", Tables: names, Attempts: attempt}
		}
		pending = deferred
	}
}

// Purge deletes every row of tables. Tables already empty are left alone;
// a table failing to truncate is retried in a later pass, up to the purge
// retry budget.
func (s *Scheduler) Purge(ctx context.Context, tables []string) error {
	pending := tables
	for attempt := 1; ; attempt++ {
		var failed []string
		for _, t := range pending {
			n, err := s.target.RowCount(ctx, t)
			if err != nil {
				return fmt.Errorf("counting rows of %s: %w", t, err)
			}
			if n == 0 {
				continue
			}
			if err := s.target.Truncate(ctx, t, true); err != nil {
				s.logger.Warn("purge failed, deferring table", "table", t, "attempt", attempt, "error", err)
				failed = append(failed, t)
				continue
			}
			s.logger.Info("purged table", "table", t, "rows", n)
		}
		if len(failed) == 0 {
			return nil
		}
		if attempt >= s.opts.PurgeMaxRetries {
			s.logger.Error("max purge retries reached", "tables", failed, "attempts", attempt)
			return &RetryExhaustedError{Operation: "purge", Tables: failed, Attempts: attempt}
		}
		pending = failed
	}
}
