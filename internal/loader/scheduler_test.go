package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/envsync/envsync/internal/database"
	"github.com/envsync/envsync/internal/schema"
)

var errParentKey = errors.New("ORA-02291: integrity constraint (THE.SEEDLOT_CLIENT_FK) violated - parent key not found")

func seedlotTarget() *database.MockDB {
	db := database.NewMockDB("THE")
	db.FKs = []schema.TableConstraint{
		{Name: "SEEDLOT_CLIENT_FK", Schema: "THE", Table: "SEEDLOT", ReferencedTable: "CLIENT_LOCATION"},
		{Name: "SEEDLOT_GEN_FK", Schema: "THE", Table: "SEEDLOT_GENETIC_WORTH", ReferencedTable: "SEEDLOT"},
	}
	db.TriggerList = []schema.Trigger{
		{Name: "SEEDLOT_AR_IUD_TRG", Owner: "THE", Table: "SEEDLOT", Enabled: true},
		{Name: "OLD_TRG", Owner: "THE", Table: "SEEDLOT", Enabled: false},
	}
	return db
}

// dataFiles creates an empty data file per table and returns the lookup.
func dataFiles(t *testing.T, tables ...string) func(string) string {
	t.Helper()
	dir := t.TempDir()
	for _, tbl := range tables {
		if err := os.WriteFile(filepath.Join(dir, tbl+".csv.gz"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return func(table string) string { return filepath.Join(dir, table+".csv.gz") }
}

func loads(events []string) []string {
	var out []string
	for _, e := range events {
		if strings.HasPrefix(e, "load:") {
			out = append(out, strings.TrimPrefix(e, "load:"))
		}
	}
	return out
}

func indexOf(events []string, event string) int {
	for i, e := range events {
		if e == event {
			return i
		}
	}
	return -1
}

var allTables = []string{"SEEDLOT_GENETIC_WORTH", "SEEDLOT", "CLIENT_LOCATION"}

func TestRunLoadsInDependencyOrder(t *testing.T) {
	db := seedlotTarget()
	var phases []Phase
	s := NewScheduler(db, Options{
		FileFor: dataFiles(t, allTables...),
		OnStatus: func(st *Status) {
			if len(phases) == 0 || phases[len(phases)-1] != st.Phase {
				phases = append(phases, st.Phase)
			}
		},
	})

	status, err := s.Run(context.Background(), allTables)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := strings.Join(loads(db.Events), ",")
	if got != "CLIENT_LOCATION,SEEDLOT,SEEDLOT_GENETIC_WORTH" {
		t.Errorf("unexpected load order %s", got)
	}
	if status.Phase != PhaseDone || status.Attempt != 1 {
		t.Errorf("unexpected final status %s attempt %d", status.Phase, status.Attempt)
	}
	if status.Count(TableLoaded) != 3 || status.RowsLoaded() != 3 {
		t.Errorf("expected 3 loaded tables, got %d (%d rows)", status.Count(TableLoaded), status.RowsLoaded())
	}
	if status.ConstraintsEnabled != 2 {
		t.Errorf("expected 2 constraints enabled, got %d", status.ConstraintsEnabled)
	}
	if len(db.DisabledCons) != 0 || len(db.DisabledTrigs) != 0 {
		t.Errorf("constraints or triggers left disabled: %v %v", db.DisabledCons, db.DisabledTrigs)
	}
	if indexOf(db.Events, "disable-trigger:OLD_TRG") >= 0 || indexOf(db.Events, "enable-trigger:OLD_TRG") >= 0 {
		t.Error("a trigger disabled before the run should not be touched")
	}

	firstLoad := indexOf(db.Events, "load:CLIENT_LOCATION")
	if indexOf(db.Events, "disable-constraint:SEEDLOT_CLIENT_FK") > firstLoad ||
		indexOf(db.Events, "disable-trigger:SEEDLOT_AR_IUD_TRG") > firstLoad {
		t.Error("constraints and triggers must be disabled before loading")
	}
	if indexOf(db.Events, "enable-trigger:SEEDLOT_AR_IUD_TRG") < indexOf(db.Events, "enable-constraint:SEEDLOT_GEN_FK") {
		t.Error("triggers should be enabled after constraints")
	}

	want := []Phase{PhasePreparing, PhaseLoading, PhaseFinalizing, PhaseDone}
	if strings.Join(phaseStrings(phases), ",") != strings.Join(phaseStrings(want), ",") {
		t.Errorf("unexpected phases %v", phases)
	}
}

func phaseStrings(ps []Phase) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func TestRunRetriesDeferredTables(t *testing.T) {
	db := seedlotTarget()
	db.LoadErrs["SEEDLOT"] = []error{errParentKey, errParentKey}

	s := NewScheduler(db, Options{FileFor: dataFiles(t, allTables...)})
	status, err := s.Run(context.Background(), allTables)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if db.LoadAttempts["SEEDLOT"] != 3 {
		t.Errorf("expected SEEDLOT loaded 3 times, got %d", db.LoadAttempts["SEEDLOT"])
	}
	if db.LoadAttempts["CLIENT_LOCATION"] != 1 {
		t.Errorf("a loaded table should not be retried, got %d", db.LoadAttempts["CLIENT_LOCATION"])
	}
	if status.Attempt != 3 {
		t.Errorf("expected 3 passes, got %d", status.Attempt)
	}
	ts, _ := status.Table("SEEDLOT")
	if ts.State != TableLoaded || ts.Attempts != 3 || ts.Error != "" {
		t.Errorf("unexpected SEEDLOT status %+v", ts)
	}

	// each failed load is cleaned up
	if n := strings.Count(strings.Join(db.Events, " "), "truncate:SEEDLOT "); n != 2 {
		t.Errorf("expected 2 truncates of SEEDLOT, got %d", n)
	}
}

func TestRunStopsAtMaxRetries(t *testing.T) {
	db := seedlotTarget()
	db.LoadErr["SEEDLOT"] = errParentKey

	s := NewScheduler(db, Options{MaxRetries: 4, FileFor: dataFiles(t, allTables...)})
	status, err := s.Run(context.Background(), allTables)

	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if exhausted.Operation != "load" || exhausted.Attempts != 4 {
		t.Errorf("unexpected error %+v", exhausted)
	}
	if strings.Join(exhausted.Tables, ",") != "SEEDLOT" {
		t.Errorf("expected only SEEDLOT failing, got %v", exhausted.Tables)
	}
	if db.LoadAttempts["SEEDLOT"] != 4 {
		t.Errorf("expected exactly 4 load attempts, got %d", db.LoadAttempts["SEEDLOT"])
	}
	if status.Phase != PhaseFailed {
		t.Errorf("expected FAILED, got %s", status.Phase)
	}
	if ts, _ := status.Table("SEEDLOT"); ts.State != TableFailed {
		t.Errorf("expected SEEDLOT failed, got %s", ts.State)
	}
	if len(db.DisabledCons) != 0 {
		t.Errorf("constraints should be re-enabled after giving up, still disabled: %v", db.DisabledCons)
	}
	if len(db.SequencesSet) != 0 {
		t.Error("sequences should not be touched after a failed load")
	}
}

func TestRunSkipsTables(t *testing.T) {
	db := seedlotTarget()
	db.RowCounts["CLIENT_LOCATION"] = 12

	s := NewScheduler(db, Options{FileFor: dataFiles(t, "SEEDLOT", "CLIENT_LOCATION")})
	status, err := s.Run(context.Background(), allTables)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(loads(db.Events), ","); got != "SEEDLOT" {
		t.Errorf("expected only SEEDLOT loaded, got %s", got)
	}
	ts, _ := status.Table("SEEDLOT_GENETIC_WORTH")
	if ts.State != TableSkipped || ts.Reason != "no data file" {
		t.Errorf("unexpected status for a table without a file: %+v", ts)
	}
	ts, _ = status.Table("CLIENT_LOCATION")
	if ts.State != TableSkipped || ts.Rows != 12 {
		t.Errorf("unexpected status for a non-empty table: %+v", ts)
	}
}

func TestRunRefreshTruncatesFirst(t *testing.T) {
	db := seedlotTarget()
	db.RowCounts["CLIENT_LOCATION"] = 12

	s := NewScheduler(db, Options{RefreshDB: true, FileFor: dataFiles(t, allTables...)})
	if _, err := s.Run(context.Background(), allTables); err != nil {
		t.Fatalf("Run: %v", err)
	}
	tr := indexOf(db.Events, "truncate:CLIENT_LOCATION")
	ld := indexOf(db.Events, "load:CLIENT_LOCATION")
	if tr < 0 || ld < tr {
		t.Errorf("expected truncate before load, events %v", db.Events)
	}
	if db.RowCounts["CLIENT_LOCATION"] != 1 {
		t.Errorf("expected the old rows replaced, got %d", db.RowCounts["CLIENT_LOCATION"])
	}
}

func TestRunRepairsSequences(t *testing.T) {
	db := seedlotTarget()
	db.Owned = []schema.SequenceTarget{
		{Sequence: "SEEDLOT_SEQ", SequenceOwner: "THE", Schema: "THE", Table: "SEEDLOT", Column: "SEEDLOT_ID"},
		{Sequence: "CLIENT_SEQ", SequenceOwner: "THE", Schema: "THE", Table: "CLIENT_LOCATION", Column: "CLIENT_ID"},
	}
	db.Sequences["THE.SEEDLOT_SEQ"] = 5
	db.Sequences["THE.CLIENT_SEQ"] = 500
	db.Maxes["THE.SEEDLOT.SEEDLOT_ID"] = 90
	db.Maxes["THE.CLIENT_LOCATION.CLIENT_ID"] = 10

	s := NewScheduler(db, Options{FileFor: dataFiles(t, allTables...)})
	status, err := s.Run(context.Background(), allTables)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.SequencesFixed != 1 {
		t.Errorf("expected 1 sequence fixed, got %d", status.SequencesFixed)
	}
	if db.Sequences["THE.SEEDLOT_SEQ"] != 91 {
		t.Errorf("expected SEEDLOT_SEQ at 91, got %d", db.Sequences["THE.SEEDLOT_SEQ"])
	}
	if _, ok := db.SequencesSet["THE.CLIENT_SEQ"]; ok {
		t.Error("a sequence ahead of its data should not move")
	}
	if indexOf(db.Events, "set-sequence:THE.SEEDLOT_SEQ:91") > indexOf(db.Events, "enable-constraint:SEEDLOT_CLIENT_FK") {
		t.Error("sequences should be repaired before constraints are enabled")
	}
}

func TestRunEnablesPendingConstraints(t *testing.T) {
	db := seedlotTarget()
	db.Pending = []schema.TableConstraint{
		{Name: "SEEDLOT_CLIENT_FK", Schema: "THE", Table: "SEEDLOT", ReferencedTable: "CLIENT_LOCATION"},
		{Name: "ORCHARD_FK", Schema: "THE", Table: "ORCHARD", ReferencedTable: "CLIENT_LOCATION"},
	}

	s := NewScheduler(db, Options{FileFor: dataFiles(t, allTables...)})
	status, err := s.Run(context.Background(), allTables)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if indexOf(db.Events, "disable-constraint:ORCHARD_FK") >= 0 {
		t.Error("a pending constraint is already dropped and should not be disabled")
	}
	if indexOf(db.Events, "enable-constraint:ORCHARD_FK") < 0 {
		t.Error("a pending constraint should be restored")
	}
	if n := strings.Count(strings.Join(db.Events, " ")+" ", "enable-constraint:SEEDLOT_CLIENT_FK "); n != 1 {
		t.Errorf("expected SEEDLOT_CLIENT_FK enabled once, got %d", n)
	}
	if status.ConstraintsEnabled != 3 {
		t.Errorf("expected 3 constraints enabled, got %d", status.ConstraintsEnabled)
	}
}

func TestEnableConstraintsDefersViolations(t *testing.T) {
	db := seedlotTarget()
	db.EnableErrs["SEEDLOT_CLIENT_FK"] = []error{errParentKey, errParentKey}

	s := NewScheduler(db, Options{})
	if err := s.EnableConstraints(context.Background(), db.FKs); err != nil {
		t.Fatalf("EnableConstraints: %v", err)
	}
	if n := strings.Count(strings.Join(db.Events, " ")+" ", "enable-constraint:SEEDLOT_CLIENT_FK "); n != 3 {
		t.Errorf("expected 3 enable attempts, got %d", n)
	}
	if n := strings.Count(strings.Join(db.Events, " ")+" ", "enable-constraint:SEEDLOT_GEN_FK "); n != 1 {
		t.Errorf("an enabled constraint should not be retried, got %d attempts", n)
	}
}

func TestEnableConstraintsExhausted(t *testing.T) {
	db := seedlotTarget()
	db.EnableErrs["SEEDLOT_CLIENT_FK"] = []error{errParentKey, errParentKey, errParentKey}

	s := NewScheduler(db, Options{EnableRetries: 2})
	err := s.EnableConstraints(context.Background(), db.FKs)
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 2 || strings.Join(exhausted.Tables, ",") != "SEEDLOT_CLIENT_FK" {
		t.Errorf("unexpected error %+v", exhausted)
	}
}

func TestEnableConstraintsOtherErrorStops(t *testing.T) {
	db := seedlotTarget()
	db.EnableErrs["SEEDLOT_CLIENT_FK"] = []error{errors.New("ORA-01031: insufficient privileges")}

	s := NewScheduler(db, Options{})
	err := s.EnableConstraints(context.Background(), db.FKs)
	if err == nil || !strings.Contains(err.Error(), "ORA-01031") {
		t.Fatalf("expected the privilege error, got %v", err)
	}
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("a non foreign key error should not be retried")
	}
}

func TestPurge(t *testing.T) {
	db := seedlotTarget()
	db.RowCounts["SEEDLOT"] = 10
	db.RowCounts["CLIENT_LOCATION"] = 3
	db.TruncateErrs["CLIENT_LOCATION"] = []error{errors.New("ORA-02266: unique/primary keys in table referenced by enabled foreign keys")}

	s := NewScheduler(db, Options{})
	if err := s.Purge(context.Background(), allTables); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if indexOf(db.Events, "truncate:SEEDLOT_GENETIC_WORTH") >= 0 {
		t.Error("an empty table should not be truncated")
	}
	if n := strings.Count(strings.Join(db.Events, " ")+" ", "truncate:CLIENT_LOCATION "); n != 2 {
		t.Errorf("expected CLIENT_LOCATION truncated twice, got %d", n)
	}
	if db.RowCounts["SEEDLOT"] != 0 || db.RowCounts["CLIENT_LOCATION"] != 0 {
		t.Errorf("expected empty tables, got %v", db.RowCounts)
	}
}

func TestPurgeExhausted(t *testing.T) {
	db := seedlotTarget()
	db.RowCounts["SEEDLOT"] = 10
	db.TruncateErr["SEEDLOT"] = errors.New("resource busy")

	s := NewScheduler(db, Options{PurgeMaxRetries: 3})
	err := s.Purge(context.Background(), allTables)
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if exhausted.Operation != "purge" || exhausted.Attempts != 3 {
		t.Errorf("unexpected error %+v", exhausted)
	}
	if n := strings.Count(strings.Join(db.Events, " ")+" ", "truncate:SEEDLOT "); n != 3 {
		t.Errorf("expected 3 truncate attempts, got %d", n)
	}
}

func TestRunCanceled(t *testing.T) {
	db := seedlotTarget()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(db, Options{FileFor: dataFiles(t, allTables...)})
	status, err := s.Run(ctx, allTables)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if status.Phase != PhaseFailed {
		t.Errorf("expected FAILED, got %s", status.Phase)
	}
}
