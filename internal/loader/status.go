package loader

import (
	"time"
)

// Phase is the scheduler state.
type Phase string

const (
	PhasePreparing  Phase = "PREPARING"
	PhaseLoading    Phase = "LOADING"
	PhaseRetrying   Phase = "RETRYING"
	PhaseFinalizing Phase = "FINALIZING"
	PhaseDone       Phase = "DONE"
	PhaseFailed     Phase = "FAILED"
)

// Table states.
const (
	TablePending  = "pending"
	TableLoaded   = "loaded"
	TableDeferred = "deferred"
	TableSkipped  = "skipped"
	TableFailed   = "failed"
)

// Status is the progress of one load run.
type Status struct {
	Phase              Phase         `yaml:"phase"`
	Attempt            int           `yaml:"attempt"`
	Tables             []TableStatus `yaml:"tables"`
	SequencesFixed     int           `yaml:"sequences_fixed"`
	ConstraintsEnabled int           `yaml:"constraints_enabled"`
	ElapsedTime        time.Duration `yaml:"elapsed_time"`
	Errors             []string      `yaml:"errors,omitempty"`

	started time.Time
	index   map[string]int
}

// TableStatus tracks one table.
type TableStatus struct {
	Name     string `yaml:"name"`
	State    string `yaml:"state"`
	Rows     int64  `yaml:"rows"`
	Attempts int    `yaml:"attempts"`
	Reason   string `yaml:"reason,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// StatusCallback receives the status after every state change.
type StatusCallback func(status *Status)

func newStatus(tables []string) *Status {
	s := &Status{
		Phase:   PhasePreparing,
		started: time.Now(),
		index:   make(map[string]int, len(tables)),
	}
	for i, t := range tables {
		s.Tables = append(s.Tables, TableStatus{Name: t, State: TablePending})
		s.index[t] = i
	}
	return s
}

// Table returns the status of name.
func (s *Status) Table(name string) (TableStatus, bool) {
	i, ok := s.index[name]
	if !ok {
		return TableStatus{}, false
	}
	return s.Tables[i], true
}

func (s *Status) table(name string) *TableStatus {
	if i, ok := s.index[name]; ok {
		return &s.Tables[i]
	}
	s.Tables = append(s.Tables, TableStatus{Name: name, State: TablePending})
	s.index[name] = len(s.Tables) - 1
	return &s.Tables[len(s.Tables)-1]
}

// Count returns how many tables are in state.
func (s *Status) Count(state string) int {
	n := 0
	for _, t := range s.Tables {
		if t.State == state {
			n++
		}
	}
	return n
}

// RowsLoaded sums the rows of every loaded table.
func (s *Status) RowsLoaded() int64 {
	var n int64
	for _, t := range s.Tables {
		if t.State == TableLoaded {
			n += t.Rows
		}
	}
	return n
}
