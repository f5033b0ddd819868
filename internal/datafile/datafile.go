// Package datafile reads and writes the cached table exports: gzip
// compressed CSV with a header row and \N as the null marker. A string made
// of backslashes followed by N gets one more leading backslash, so it never
// reads back as NULL. Binary values are hex encoded.
package datafile

import (
	"bufio"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Suffix is the file name suffix of a data file.
const Suffix = ".csv.gz"

// Null is the field value written for SQL NULL.
const Null = `\N`

// TimeLayout formats date and timestamp values. Fractional seconds are
// written only when present.
const TimeLayout = "2006-01-02 15:04:05.999999999"

// ZonedTimeLayout formats values carrying a time zone offset.
const ZonedTimeLayout = TimeLayout + " -07:00"

// ErrNoHeader is returned for a data file without a header row.
var ErrNoHeader = errors.New("data file has no header row")

// Writer writes rows to a data file.
type Writer struct {
	f    *os.File
	gz   *gzip.Writer
	csv  *csv.Writer
	rows int64
	tmp  string
	path string
}

// Create opens path for writing. The file only appears at path once Close
// succeeds.
func Create(path string, columns []string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("creating data file: %w", err)
	}
	gz := gzip.NewWriter(f)
	w := &Writer{f: f, gz: gz, csv: csv.NewWriter(gz), tmp: tmp, path: path}
	if err := w.csv.Write(columns); err != nil {
		w.Abort()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return w, nil
}

// RawWriter compresses CSV produced elsewhere, such as by a database COPY.
type RawWriter struct {
	f    *os.File
	gz   *gzip.Writer
	tmp  string
	path string
}

// CreateRaw opens path for raw CSV. Like Create, the file only appears at
// path once Close succeeds.
func CreateRaw(path string) (*RawWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("creating data file: %w", err)
	}
	return &RawWriter{f: f, gz: gzip.NewWriter(f), tmp: tmp, path: path}, nil
}

func (r *RawWriter) Write(p []byte) (int, error) {
	return r.gz.Write(p)
}

// Close flushes the file and moves it into place.
func (r *RawWriter) Close() error {
	if err := r.gz.Close(); err != nil {
		r.Abort()
		return fmt.Errorf("compressing data file: %w", err)
	}
	if err := r.f.Close(); err != nil {
		os.Remove(r.tmp)
		return fmt.Errorf("closing data file: %w", err)
	}
	return os.Rename(r.tmp, r.path)
}

// Abort discards a partially written file.
func (r *RawWriter) Abort() {
	r.f.Close()
	os.Remove(r.tmp)
}

// Write appends one row. Values are formatted with FormatValue.
func (w *Writer) Write(values []any) error {
	record := make([]string, len(values))
	for i, v := range values {
		record[i] = FormatValue(v)
	}
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of data rows written.
func (w *Writer) Rows() int64 {
	return w.rows
}

// Close flushes the file and moves it into place.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.Abort()
		return fmt.Errorf("flushing data file: %w", err)
	}
	if err := w.gz.Close(); err != nil {
		w.Abort()
		return fmt.Errorf("compressing data file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("closing data file: %w", err)
	}
	return os.Rename(w.tmp, w.path)
}

// Abort discards a partially written file.
func (w *Writer) Abort() {
	w.f.Close()
	os.Remove(w.tmp)
}

// FormatValue renders a scanned column value as a CSV field.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return Null
	case string:
		if nullLike(x) {
			return `\` + x
		}
		return x
	case []byte:
		return strings.ToUpper(hex.EncodeToString(x))
	case time.Time:
		if zoned(x) {
			return x.Format(ZonedTimeLayout)
		}
		return x.Format(TimeLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// nullLike reports whether s is one or more backslashes followed by N.
func nullLike(s string) bool {
	return len(s) >= 2 && s[len(s)-1] == 'N' && strings.Trim(s[:len(s)-1], `\`) == ""
}

// zoned reports whether t carries an offset of its own, as scanned from a
// TIMESTAMP WITH TIME ZONE column. DATE and TIMESTAMP values come back in
// UTC or the local zone.
func zoned(t time.Time) bool {
	loc := t.Location()
	return loc != time.UTC && loc != time.Local
}

// Reader reads rows from a data file.
type Reader struct {
	f       *os.File
	gz      *gzip.Reader
	buf     *bufio.Reader
	csv     *csv.Reader
	columns []string
}

// Open opens a data file and reads its header row.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening data file: %w", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading data file %s: %w", path, err)
	}
	r := &Reader{f: f, gz: gz, buf: bufio.NewReader(gz)}

	line, err := r.buf.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		r.Close()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	r.columns = header
	r.csv = csv.NewReader(r.buf)
	r.csv.FieldsPerRecord = len(header)
	return r, nil
}

// Columns returns the header row.
func (r *Reader) Columns() []string {
	return r.columns
}

// Body returns the undecoded CSV after the header row.
func (r *Reader) Body() io.Reader {
	return r.buf
}

// Read returns the next row with \N mapped to nil. It returns io.EOF after
// the last row.
func (r *Reader) Read() ([]any, error) {
	rec, err := r.csv.Read()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rec))
	for i, v := range rec {
		switch {
		case v == Null:
			out[i] = nil
		case nullLike(v):
			out[i] = v[1:]
		default:
			out[i] = v
		}
	}
	return out, nil
}

// Close releases the file.
func (r *Reader) Close() error {
	r.gz.Close()
	return r.f.Close()
}
