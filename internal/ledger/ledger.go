// Package ledger implements the append-only files a niche keeps between
// runs: the processed-id ledger, the output table and the failure ledger.
//
// Every append is flushed and synced before returning so a successful call
// survives a crash.
package ledger

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"reelrelay/internal/core/domain"
	"reelrelay/internal/core/ports"
)

var _ ports.ProcessedStore = (*ProcessedFile)(nil)

// ProcessedFile is a newline-delimited ledger of completed post ids.
type ProcessedFile struct {
	path string
}

// OpenProcessed creates the ledger file if missing.
func OpenProcessed(path string) (*ProcessedFile, error) {
	if err := touch(path); err != nil {
		return nil, fmt.Errorf("init processed ledger: %w", err)
	}
	return &ProcessedFile{path: path}, nil
}

// Load reads every recorded id.
func (p *ProcessedFile) Load(ctx context.Context) (map[string]struct{}, error) {
	lines, err := readLines(p.path)
	if err != nil {
		return nil, fmt.Errorf("read processed ledger %s: %w", p.path, err)
	}
	set := make(map[string]struct{}, len(lines))
	for _, id := range lines {
		set[id] = struct{}{}
	}
	return set, nil
}

// Mark appends id to the ledger.
func (p *ProcessedFile) Mark(ctx context.Context, id string) error {
	return appendSync(p.path, func(f *os.File) error {
		_, err := f.WriteString(id + "\n")
		return err
	})
}

// OutputTable is the per-niche CSV of published posts.
type OutputTable struct {
	path string
}

// OpenOutput creates the table and writes the header when the file is
// missing or empty.
func OpenOutput(path string) (*OutputTable, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.Size() > 0:
	case err == nil || errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		t := &OutputTable{path: path}
		if err := t.write(domain.OutputHeader); err != nil {
			return nil, fmt.Errorf("write output header: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("stat output table %s: %w", path, err)
	}
	return &OutputTable{path: path}, nil
}

// Append commits one record.
func (t *OutputTable) Append(rec domain.OutputRecord) error {
	return t.write(rec.Row())
}

func (t *OutputTable) write(row []string) error {
	return appendSync(t.path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(row); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	})
}

// ReadOutput returns all data rows of an output table, header excluded.
func ReadOutput(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse output table: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}

// FailureLedger records posts that exhausted their retries.
type FailureLedger struct {
	path string
}

// OpenFailures creates the failure ledger if missing.
func OpenFailures(path string) (*FailureLedger, error) {
	if err := touch(path); err != nil {
		return nil, fmt.Errorf("init failure ledger: %w", err)
	}
	return &FailureLedger{path: path}, nil
}

// Append writes rec as an owner,post_id,error line.
func (l *FailureLedger) Append(rec domain.FailureRecord) error {
	msg := strings.Join(strings.Fields(rec.LastError), " ")
	line := strings.Join([]string{rec.Owner, rec.PostID, msg}, ",")
	return appendSync(l.path, func(f *os.File) error {
		_, err := f.WriteString(line + "\n")
		return err
	})
}

// ReadFailures parses the failure ledger. The error message keeps any commas
// it contained.
func ReadFailures(path string) ([]domain.FailureRecord, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FailureRecord, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, ",", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		out = append(out, domain.FailureRecord{Owner: parts[0], PostID: parts[1], LastError: parts[2]})
	}
	return out, nil
}

// ReadProfiles reads a niche input list, skipping blank lines.
func ReadProfiles(path string) ([]string, error) {
	return readLines(path)
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func appendSync(path string, write func(*os.File) error) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return f.Close()
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}
