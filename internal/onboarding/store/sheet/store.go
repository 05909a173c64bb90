// Package sheet persists members to a human-editable CSV file, one row per
// record in a fixed column order. Every operation re-reads the whole file
// so edits made by hand between calls are honored; at expected volumes the
// O(n) cost is acceptable, and the store interface allows swapping in an
// indexed implementation without touching its consumers.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"enroll/internal/onboarding/models"
	"enroll/pkg/platform/sentinel"
)

// Store is a CSV-file-backed tabular member store.
type Store struct {
	mu   sync.Mutex
	path string
}

// New constructs a Store writing to path. Call EnsureFile before first use
// to create the file or upgrade an older layout.
func New(path string) *Store {
	return &Store{path: path}
}

// EnsureFile creates the sheet with its header when missing, and rewrites
// older files so every canonical column exists (missing ones get empty
// defaults) in the canonical order.
func (s *Store) EnsureFile(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.writeAll(nil)
		}
		return err
	}
	return s.writeAll(rows)
}

// ReadAll returns every row currently in the sheet.
func (s *Store) ReadAll(_ context.Context) ([]models.SheetRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return rows, nil
}

// Append adds one row at the end of the sheet.
func (s *Store) Append(_ context.Context, row models.SheetRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return s.writeAll(append(rows, row))
}

// FindByEntryCode returns the row carrying code, matched case-insensitively.
func (s *Store) FindByEntryCode(ctx context.Context, code string) (models.SheetRow, error) {
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return models.SheetRow{}, err
	}
	for _, row := range rows {
		if strings.EqualFold(row.EntryCode, strings.TrimSpace(code)) {
			return row, nil
		}
	}
	return models.SheetRow{}, sentinel.ErrNotFound
}

// EntryCodeExists reports whether any row carries code.
func (s *Store) EntryCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := s.FindByEntryCode(ctx, code)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus rewrites the row for code with the new status. Returns
// sentinel.ErrNotFound when no row matches and sentinel.ErrUnchanged when
// the row already carries the status.
func (s *Store) UpdateStatus(_ context.Context, code string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sentinel.ErrNotFound
		}
		return err
	}
	for i, row := range rows {
		if !strings.EqualFold(row.EntryCode, strings.TrimSpace(code)) {
			continue
		}
		if strings.EqualFold(string(row.Status), string(status)) {
			return sentinel.ErrUnchanged
		}
		rows[i].Status = status
		return s.writeAll(rows)
	}
	return sentinel.ErrNotFound
}

// readAll parses the file into rows. Callers hold s.mu.
func (s *Store) readAll() ([]models.SheetRow, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open sheet: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate hand-edited rows
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Map header names to positions so files with reordered or missing
	// columns still load; absent columns read as empty.
	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[strings.TrimSpace(name)] = i
	}
	cell := func(record []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]models.SheetRow, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, models.SheetRow{
			EntryCode:        cell(record, "Entry Code"),
			UserID:           cell(record, "User ID"),
			FullName:         cell(record, "Full Name"),
			Email:            cell(record, "Email"),
			Phone:            cell(record, "Phone"),
			DateOfBirth:      cell(record, "Date of Birth"),
			FilePath:         cell(record, "File Path"),
			RegistrationDate: cell(record, "Registration Date"),
			Status:           models.Status(cell(record, "Status")),
		})
	}
	return rows, nil
}

// writeAll rewrites the whole file atomically (temp file + rename) so a
// crash mid-write never leaves a truncated sheet. Callers hold s.mu.
func (s *Store) writeAll(rows []models.SheetRow) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sheet dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".sheet-*")
	if err != nil {
		return fmt.Errorf("create temp sheet: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(models.SheetColumns); err != nil {
		tmp.Close()
		return fmt.Errorf("write sheet header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.EntryCode,
			row.UserID,
			row.FullName,
			row.Email,
			row.Phone,
			row.DateOfBirth,
			row.FilePath,
			row.RegistrationDate,
			string(row.Status),
		}
		if err := writer.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("write sheet row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp sheet: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace sheet: %w", err)
	}
	return nil
}
