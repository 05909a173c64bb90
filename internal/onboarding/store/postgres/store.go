// Package postgres persists members in PostgreSQL, the authoritative store
// for status and identity fields. Contact data lives in members; the
// sensitive identity numbers live in identity_info, one-to-one with
// members and removed with them.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"enroll/internal/onboarding/models"
	"enroll/pkg/platform/sentinel"
)

// Clock supplies time for updated_at stamps; injected for testability.
type Clock func() time.Time

// Store is a PostgreSQL-backed member store.
type Store struct {
	db    *sql.DB
	clock Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a PostgreSQL-backed member store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the members and identity_info tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const membersTable = `
		CREATE TABLE IF NOT EXISTS members (
			id BIGSERIAL PRIMARY KEY,
			entry_code TEXT UNIQUE NOT NULL,
			user_id TEXT NOT NULL,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			date_of_birth TEXT NOT NULL DEFAULT '',
			file_path TEXT NOT NULL DEFAULT '',
			registered_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'Active'
				CHECK (status IN ('Active', 'Inactive', 'Suspended')),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	const identityTable = `
		CREATE TABLE IF NOT EXISTS identity_info (
			id BIGSERIAL PRIMARY KEY,
			member_id BIGINT NOT NULL UNIQUE
				REFERENCES members(id) ON DELETE CASCADE,
			national_id TEXT,
			passport_number TEXT,
			tax_pin TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	const userIndex = `CREATE INDEX IF NOT EXISTS idx_members_user_id ON members (user_id)`

	for _, ddl := range []string{membersTable, identityTable, userIndex} {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts the member and its identity row in one transaction.
// Returns sentinel.ErrConflict when the entry code is already taken.
func (s *Store) Create(ctx context.Context, member *models.Member) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create member: %w", err)
	}
	defer tx.Rollback()

	var memberID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO members
			(entry_code, user_id, full_name, email, phone, date_of_birth, file_path, registered_at, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		member.EntryCode,
		member.UserID,
		member.FullName,
		member.Email,
		member.Phone,
		member.DateOfBirth,
		member.FilePath,
		member.RegisteredAt,
		string(member.Status),
		s.clock(),
	).Scan(&memberID)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}

	if member.NationalID != "" || member.PassportNumber != "" || member.TaxPIN != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO identity_info (member_id, national_id, passport_number, tax_pin, updated_at)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5)
		`,
			memberID,
			member.NationalID,
			member.PassportNumber,
			member.TaxPIN,
			s.clock(),
		)
		if err != nil {
			return fmt.Errorf("insert identity info: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create member: %w", err)
	}
	return nil
}

const memberColumns = `
	m.entry_code, m.user_id, m.full_name, m.email, m.phone, m.date_of_birth,
	m.file_path, m.registered_at, m.status,
	i.national_id, i.passport_number, i.tax_pin
`

// FindByEntryCode returns the member carrying code, identity fields included.
func (s *Store) FindByEntryCode(ctx context.Context, code string) (*models.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM members m
		LEFT JOIN identity_info i ON i.member_id = m.id
		WHERE UPPER(m.entry_code) = UPPER(TRIM($1))
	`, code)
	member, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find member: %w", err)
	}
	return member, nil
}

// EntryCodeExists reports whether code is taken.
func (s *Store) EntryCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE UPPER(entry_code) = UPPER(TRIM($1)))`,
		code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check entry code: %w", err)
	}
	return exists, nil
}

// UpdateStatus mutates the member's status. Returns sentinel.ErrNotFound
// for unknown codes and sentinel.ErrUnchanged when already in status.
func (s *Store) UpdateStatus(ctx context.Context, code string, status models.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET status = $1, updated_at = $2
		WHERE UPPER(entry_code) = UPPER(TRIM($3)) AND status <> $1
	`, string(status), s.clock(), code)
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	if affected > 0 {
		return nil
	}
	exists, err := s.EntryCodeExists(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrUnchanged
}

// List returns all members, most recently registered first.
func (s *Store) List(ctx context.Context) ([]*models.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members m
		LEFT JOIN identity_info i ON i.member_id = m.id
		ORDER BY m.registered_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (*models.Member, error) {
	var (
		member                       models.Member
		status                       string
		nationalID, passport, taxPIN sql.NullString
	)
	err := row.Scan(
		&member.EntryCode,
		&member.UserID,
		&member.FullName,
		&member.Email,
		&member.Phone,
		&member.DateOfBirth,
		&member.FilePath,
		&member.RegisteredAt,
		&status,
		&nationalID,
		&passport,
		&taxPIN,
	)
	if err != nil {
		return nil, err
	}
	member.Status = models.Status(status)
	member.NationalID = nationalID.String
	member.PassportNumber = passport.String
	member.TaxPIN = taxPIN.String
	return &member, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
