package sequence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/envsync/envsync/internal/schema"
)

// Source reads and moves sequence state.
type Source interface {
	// MaxColumnValue returns the largest value of column; ok is false for
	// an empty table.
	MaxColumnValue(ctx context.Context, owner, table, column string) (value int64, ok bool, err error)
	SequenceNextValue(ctx context.Context, owner, sequence string) (int64, error)
	SetSequenceNextValue(ctx context.Context, owner, sequence string, next int64) error
}

// TriggerSource is implemented by engines whose sequences are wired to
// tables through trigger bodies.
type TriggerSource interface {
	SequenceTriggers(ctx context.Context, owner string) ([]schema.SequenceTrigger, error)
}

// OwnedSource is implemented by engines that record sequence ownership of a
// column in the catalog.
type OwnedSource interface {
	OwnedSequences(ctx context.Context, owner string) ([]schema.SequenceTarget, error)
}

// Repairer advances sequences that would hand out keys already present in
// their tables. Run it only after every table of the schema is loaded.
type Repairer struct {
	db     Source
	logger *slog.Logger
}

// NewRepairer creates a Repairer over db.
func NewRepairer(db Source, logger *slog.Logger) *Repairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repairer{db: db, logger: logger}
}

// Targets discovers the (sequence, table, column) triples of owner.
func (r *Repairer) Targets(ctx context.Context, owner string) ([]schema.SequenceTarget, error) {
	var targets []schema.SequenceTarget

	if ts, ok := r.db.(TriggerSource); ok {
		triggers, err := ts.SequenceTriggers(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("getting sequence triggers: %w", err)
		}
		for _, trg := range triggers {
			found := ExtractInsertTargets(trg.Body)
			if len(found) == 0 {
				r.logger.Debug("no sequence insert found in trigger", "trigger", trg.Trigger, "sequence", trg.Sequence)
			}
			for _, it := range found {
				tblOwner, table := it.Owner(trg.TableOwner)
				targets = append(targets, schema.SequenceTarget{
					Sequence:      trg.Sequence,
					SequenceOwner: trg.SequenceOwner,
					Schema:        tblOwner,
					Table:         table,
					Column:        it.Column,
				})
			}
		}
	}

	if src, ok := r.db.(OwnedSource); ok {
		owned, err := src.OwnedSequences(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("getting owned sequences: %w", err)
		}
		targets = append(targets, owned...)
	}

	return lo.UniqBy(targets, func(t schema.SequenceTarget) string { return t.String() }), nil
}

// FixSequences repairs every sequence of owner and returns how many moved.
func (r *Repairer) FixSequences(ctx context.Context, owner string) (int, error) {
	targets, err := r.Targets(ctx, owner)
	if err != nil {
		return 0, err
	}
	r.logger.Info("fixing sequences", "schema", owner, "count", len(targets))

	fixed := 0
	for _, t := range targets {
		changed, err := r.Repair(ctx, t)
		if err != nil {
			return fixed, err
		}
		if changed {
			fixed++
		}
	}
	return fixed, nil
}

// Repair advances one sequence so its next value is max(column)+1 when the
// column already holds the next value or more. It reports whether the
// sequence was changed.
func (r *Repairer) Repair(ctx context.Context, t schema.SequenceTarget) (bool, error) {
	maxVal, ok, err := r.db.MaxColumnValue(ctx, t.Schema, t.Table, t.Column)
	if err != nil {
		return false, fmt.Errorf("reading max of %s.%s.%s: %w", t.Schema, t.Table, t.Column, err)
	}
	if !ok {
		return false, nil
	}
	next, err := r.db.SequenceNextValue(ctx, t.SequenceOwner, t.Sequence)
	if err != nil {
		return false, fmt.Errorf("reading next value of %s.%s: %w", t.SequenceOwner, t.Sequence, err)
	}
	if maxVal < next {
		r.logger.Debug("sequence ahead of data", "sequence", t.Sequence, "next", next, "max", maxVal)
		return false, nil
	}

	if err := r.db.SetSequenceNextValue(ctx, t.SequenceOwner, t.Sequence, maxVal+1); err != nil {
		return false, fmt.Errorf("advancing %s.%s: %w", t.SequenceOwner, t.Sequence, err)
	}
	r.logger.Info("sequence advanced", "sequence", t.SequenceOwner+"."+t.Sequence,
		"table", t.Table, "column", t.Column, "from", next, "to", maxVal+1)
	return true, nil
}
