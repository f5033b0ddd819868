package migrationfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/envsync/envsync/internal/ddl"
	"github.com/envsync/envsync/internal/lock"
	"github.com/envsync/envsync/internal/schema"
)

func openFolder(t *testing.T, dir string) *Folder {
	t.Helper()
	f, err := OpenFolder(dir, nil)
	if err != nil {
		t.Fatalf("OpenFolder: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func touch(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func ref(name string, kind schema.Kind) schema.ObjectRef {
	return schema.NewObjectRef(name, "THE", kind)
}

func fullBucket() *ddl.Bucket {
	b := ddl.NewBucket()
	b.Add(ref("CLIENT_LOCATION", schema.KindTable), `CREATE TABLE "THE"."CLIENT_LOCATION" (ID NUMBER);`)
	b.Add(ref("SEEDLOT_TYP", schema.KindType), `CREATE OR REPLACE TYPE "THE"."SEEDLOT_TYP" AS OBJECT (ID NUMBER);`)
	b.Add(ref("SPR_PKG", schema.KindPackage), `CREATE OR REPLACE EDITIONABLE PACKAGE "THE"."SPR_PKG" AS END;`)
	b.Add(ref("GET_ID", schema.KindFunction), `CREATE OR REPLACE FUNCTION "THE"."GET_ID" RETURN NUMBER AS BEGIN RETURN 1; END;`)
	b.Add(ref("SEEDLOT_TRG", schema.KindTrigger), `CREATE OR REPLACE EDITIONABLE TRIGGER "THE"."SEEDLOT_TRG" BEFORE INSERT ON SEEDLOT BEGIN NULL; END;`)
	return b
}

func TestNewVersion(t *testing.T) {
	v, err := NewVersion("1.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "1.2.0" {
		t.Errorf("expected 1.2.0, got %s", v)
	}
	for _, bad := range []string{"", "abc", "1.0.0.1", "1.0.0-rc1"} {
		if _, err := NewVersion(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
	if got := MustVersion("1.0.14").NextMinor().String(); got != "1.1.0" {
		t.Errorf("expected 1.1.0, got %s", got)
	}
	if got := MustVersion("1.0.0").AddMicro(2).String(); got != "1.0.2" {
		t.Errorf("expected 1.0.2, got %s", got)
	}
	if got := Max(MustVersion("1.10.0"), nil, MustVersion("1.9.3")).String(); got != "1.10.0" {
		t.Errorf("expected numeric ordering, got %s", got)
	}
}

func TestParseFileName(t *testing.T) {
	v, desc, ok := ParseFileName("V1.0.14__seedlot_P.sql")
	if !ok || v.String() != "1.0.14" || desc != "seedlot_P" {
		t.Errorf("unexpected parse: %v %q %v", v, desc, ok)
	}
	for _, name := range []string{"seedlot.sql", "V1.0.0_x.sql", "V1.0.0__x.txt", ".envsync.lck"} {
		if _, _, ok := ParseFileName(name); ok {
			t.Errorf("expected %q to be ignored", name)
		}
	}
}

func TestWriteEmptyFolder(t *testing.T) {
	dir := t.TempDir()
	f := openFolder(t, dir)

	written, err := f.Write(fullBucket(), MustVersion("1.0.0"), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, p := range written {
		names = append(names, filepath.Base(p))
	}
	if got := strings.Join(names, ","); got != "V1.0.0__x.sql,V1.0.1__x_P.sql,V1.0.2__x_T.sql" {
		t.Fatalf("unexpected files: %s", got)
	}

	program, err := os.ReadFile(filepath.Join(dir, "V1.0.1__x_P.sql"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(program)
	typ, pkg, fn := strings.Index(text, "SEEDLOT_TYP"), strings.Index(text, "SPR_PKG"), strings.Index(text, "GET_ID")
	if typ < 0 || !(typ < pkg && pkg < fn) {
		t.Errorf("expected types, packages, then functions:\n%s", text)
	}
}

func TestWriteAfterExistingFiles(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i < 15; i++ {
		touch(t, dir, FileName(MustVersion("1.0.0").AddMicro(i), "dummy_migration"), "")
	}
	f := openFolder(t, dir)

	next, err := f.NextVersion(MustVersion("1.0.0"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.String() != "1.1.0" {
		t.Errorf("expected 1.1.0, got %s", next)
	}

	written, err := f.Write(fullBucket(), MustVersion("1.0.0"), "seedlot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 3 || filepath.Base(written[0]) != "V1.1.0__seedlot.sql" {
		t.Errorf("unexpected files: %v", written)
	}

	// a second set in the same run moves past the first one's companions
	b := ddl.NewBucket()
	b.Add(ref("ORCHARD", schema.KindTable), `CREATE TABLE "THE"."ORCHARD" (ID NUMBER);`)
	written, err = f.Write(b, MustVersion("1.0.0"), "orchard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 1 || filepath.Base(written[0]) != "V1.2.0__orchard.sql" {
		t.Errorf("unexpected files: %v", written)
	}
}

func TestWriteStartAboveExisting(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "V1.0.0__old.sql", "")
	f := openFolder(t, dir)

	next, err := f.NextVersion(MustVersion("2.0.0"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.String() != "2.0.0" {
		t.Errorf("expected the requested 2.0.0, got %s", next)
	}
}

func TestWriteEmptyBucket(t *testing.T) {
	dir := t.TempDir()
	f := openFolder(t, dir)

	written, err := f.Write(ddl.NewBucket(), MustVersion("1.0.0"), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 0 {
		t.Errorf("expected no files, got %v", written)
	}
	files, _ := f.Files()
	if len(files) != 0 {
		t.Errorf("expected an empty folder, got %d files", len(files))
	}
}

func TestWriteOnlyTriggers(t *testing.T) {
	dir := t.TempDir()
	f := openFolder(t, dir)

	b := ddl.NewBucket()
	b.Add(ref("SEEDLOT_TRG", schema.KindTrigger), `CREATE TRIGGER "THE"."SEEDLOT_TRG"`)
	written, err := f.Write(b, MustVersion("1.0.0"), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 1 || filepath.Base(written[0]) != "V1.0.2__x_T.sql" {
		t.Errorf("unexpected files: %v", written)
	}
}

func TestWriteCollision(t *testing.T) {
	dir := t.TempDir()
	f := openFolder(t, dir)

	// a requested start below the folder's highest companion
	touch(t, dir, "V1.0.1__other_P.sql", "")
	_, err := f.Write(fullBucket(), MustVersion("0.9.0"), "x")
	if err != nil {
		t.Fatalf("expected next minor to avoid the collision, got %v", err)
	}

	if err := writeExclusive(filepath.Join(dir, "V1.1.0__x.sql"), "again"); !errors.Is(err, ErrFileExists) {
		t.Errorf("expected ErrFileExists, got %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "V1.1.0__x.sql"))
	if strings.Contains(string(data), "again") {
		t.Error("existing file was overwritten")
	}
}

func TestWriteStartsAboveManualFiles(t *testing.T) {
	dir := t.TempDir()
	f := openFolder(t, dir)
	touch(t, dir, "V3.0.2__manual.sql", "")

	// the requested start would put the _T companion on the manual file
	written, err := f.Write(fullBucket(), MustVersion("3.0.0"), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(written[0]) != "V3.1.0__x.sql" {
		t.Errorf("expected the set to start at 3.1.0, got %v", written)
	}
	if _, err := os.Stat(filepath.Join(dir, "V3.0.0__x.sql")); err == nil {
		t.Error("expected no file below the manual migration")
	}
}

func TestOpenFolderLocked(t *testing.T) {
	dir := t.TempDir()
	openFolder(t, dir)

	held, _, err := lock.IsHeld(dir)
	if err != nil {
		t.Fatalf("IsHeld: %v", err)
	}
	if !held {
		t.Error("expected the folder to be locked")
	}
}

func TestParseObjects(t *testing.T) {
	text := `
  CREATE TABLE "THE"."BEC_ZONE_CODE"
   (	"BEC_ZONE_CODE" VARCHAR2(4) NOT NULL ENABLE
   ) ;
  CREATE UNIQUE INDEX "THE"."BEC_ZONE_CODE_PK" ON "THE"."BEC_ZONE_CODE" ("BEC_ZONE_CODE");
   CREATE SEQUENCE  "THE"."SAUD_SEQ"  MINVALUE 1 INCREMENT BY 1 START WITH 1 NOCACHE;
  CREATE OR REPLACE EDITIONABLE TRIGGER "THE"."SPR_SEEDLOT_AR_IUD_TRG"
  AFTER INSERT ON seedlot BEGIN NULL; END;
  CREATE OR REPLACE FORCE NONEDITIONABLE VIEW "THE"."SEEDLOT_V" AS SELECT 1 FROM dual;
  CREATE OR REPLACE PACKAGE BODY "THE"."SPR_PKG" AS END;
  CREATE OR REPLACE EDITIONABLE PACKAGE "THE"."SPR_PKG" AS END;
  CREATE OR REPLACE TYPE BODY the.seedlot_typ AS END;
  CREATE GLOBAL TEMPORARY TABLE "THE"."GTT_WORK" (ID NUMBER);
`
	refs, err := ParseObjects(strings.NewReader(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []schema.ObjectRef{
		ref("BEC_ZONE_CODE", schema.KindTable),
		ref("SAUD_SEQ", schema.KindSequence),
		ref("SPR_SEEDLOT_AR_IUD_TRG", schema.KindTrigger),
		ref("SEEDLOT_V", schema.KindView),
		ref("SPR_PKG", schema.KindPackage),
		ref("SEEDLOT_TYP", schema.KindType),
		ref("GTT_WORK", schema.KindTable),
	}
	if len(refs) != len(want) {
		t.Fatalf("expected %d objects, got %d: %v", len(want), len(refs), refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("object %d: expected %s, got %s", i, want[i], refs[i])
		}
	}
}

func TestExportedSkipsWrittenObjects(t *testing.T) {
	dir := t.TempDir()
	f := openFolder(t, dir)
	if _, err := f.Write(fullBucket(), MustVersion("1.0.0"), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exported, err := f.Exported()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exported.Len() != 5 {
		t.Errorf("expected 5 exported objects, got %d", exported.Len())
	}
	for _, e := range fullBucket().Entries() {
		if !exported.Has(e.Ref) {
			t.Errorf("expected %s to be exported", e.Ref)
		}
	}
}
