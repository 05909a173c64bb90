// Package registrar turns a completed answer set into a persisted member
// record. It owns the entry code generator and both stores: the relational
// store is authoritative, the sheet is a best-effort human-readable copy.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"enroll/internal/onboarding/entrycode"
	"enroll/internal/onboarding/models"
	"enroll/internal/platform/metrics"
	dErrors "enroll/pkg/domain-errors"
	"enroll/pkg/platform/audit"
	"enroll/pkg/platform/sentinel"
)

// MemberStore is the authoritative relational store.
type MemberStore interface {
	Create(ctx context.Context, member *models.Member) error
	FindByEntryCode(ctx context.Context, code string) (*models.Member, error)
	EntryCodeExists(ctx context.Context, code string) (bool, error)
	UpdateStatus(ctx context.Context, code string, status models.Status) error
	List(ctx context.Context) ([]*models.Member, error)
}

// SheetStore is the tabular copy. Writes to it never roll back the
// relational store.
type SheetStore interface {
	Append(ctx context.Context, row models.SheetRow) error
	EntryCodeExists(ctx context.Context, code string) (bool, error)
	UpdateStatus(ctx context.Context, code string, status models.Status) error
}

// Registration is the outcome of a successful Register call. Partial marks
// records that made it to the relational store but not the sheet.
type Registration struct {
	EntryCode string
	Partial   bool
}

// StoreResult is the per-store outcome of a status update attempt.
type StoreResult string

const (
	ResultUpdated   StoreResult = "updated"
	ResultUnchanged StoreResult = "unchanged"
	ResultNotFound  StoreResult = "not_found"
	ResultFailed    StoreResult = "failed"
)

// StatusOutcome reports what each store did with a status update. The
// stores can disagree transiently, a hand-edited sheet row for example.
type StatusOutcome struct {
	Relational StoreResult
	Sheet      StoreResult
}

// Registrar persists completed onboarding attempts under fresh entry codes.
type Registrar struct {
	members MemberStore
	sheet   SheetStore
	codes   *entrycode.Generator
	log     *slog.Logger
	metrics *metrics.Metrics
	auditor *audit.Publisher
	tracer  trace.Tracer
	clock   func() time.Time
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registrar) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics enables metric emission.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registrar) { r.metrics = m }
}

// WithAuditor enables audit trail emission.
func WithAuditor(a *audit.Publisher) Option {
	return func(r *Registrar) { r.auditor = a }
}

// WithClock sets the time source for registration stamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Registrar) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// New constructs a Registrar over both stores.
func New(members MemberStore, sheet SheetStore, codes *entrycode.Generator, opts ...Option) *Registrar {
	r := &Registrar{
		members: members,
		sheet:   sheet,
		codes:   codes,
		log:     slog.Default(),
		tracer:  otel.Tracer("enroll/registrar"),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register persists the answers as a new member. The relational write is
// the commit point: when it fails no entry code is consumed and no sheet
// row is written. A failed sheet write after it still succeeds, flagged
// Partial.
func (r *Registrar) Register(ctx context.Context, userID string, answers models.Answers) (*Registration, error) {
	ctx, span := r.tracer.Start(ctx, "registrar.Register",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	if answers.Get(models.FieldFullName) == "" || answers.Get(models.FieldEmail) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "registration answers incomplete")
	}

	code, err := r.codes.Generate(ctx, r.codeExists)
	if err != nil {
		return nil, fmt.Errorf("generate entry code: %w", err)
	}
	span.SetAttributes(attribute.String("entry_code", code))

	member := r.buildMember(code, userID, answers)
	if err := r.members.Create(ctx, member); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "persist member")
	}
	if r.metrics != nil {
		r.metrics.MembersRegistered.Inc()
	}
	r.emit(audit.Event{Action: audit.ActionMemberRegistered, UserID: userID, EntryCode: code})

	partial := !r.appendSheetRow(ctx, member)
	if partial {
		if r.metrics != nil {
			r.metrics.PartialPersists.Inc()
		}
		r.emit(audit.Event{
			Action:    audit.ActionMemberPartialSave,
			UserID:    userID,
			EntryCode: code,
			Detail:    "sheet write failed, relational record kept",
		})
	}
	return &Registration{EntryCode: code, Partial: partial}, nil
}

// appendSheetRow writes the sheet copy, reporting success. A code that
// appeared in the sheet since generation (a hand edit can do that) gets a
// fresh code for the sheet row only; the member keeps the relational one.
func (r *Registrar) appendSheetRow(ctx context.Context, member *models.Member) bool {
	row := models.SheetRowFromMember(member)

	taken, err := r.sheet.EntryCodeExists(ctx, member.EntryCode)
	if err != nil {
		r.log.Warn("sheet existence re-check failed", "entry_code", member.EntryCode, "error", err)
		return false
	}
	if taken {
		fresh, err := r.codes.Generate(ctx, r.sheet.EntryCodeExists)
		if err != nil {
			r.log.Warn("sheet collision, no replacement code", "entry_code", member.EntryCode, "error", err)
			return false
		}
		r.log.Warn("sheet entry code collision, sheet row uses replacement",
			"entry_code", member.EntryCode, "sheet_entry_code", fresh)
		r.emit(audit.Event{
			Action:    audit.ActionMemberPartialSave,
			UserID:    member.UserID,
			EntryCode: member.EntryCode,
			Detail:    "sheet row written under replacement code " + fresh,
		})
		row.EntryCode = fresh
	}

	if err := r.sheet.Append(ctx, row); err != nil {
		r.log.Warn("sheet append failed", "entry_code", member.EntryCode, "error", err)
		return false
	}
	return true
}

// UpdateStatus applies the status to both stores, always attempting both.
// It returns an error only when neither store moved to the new status.
func (r *Registrar) UpdateStatus(ctx context.Context, code string, status models.Status) (StatusOutcome, error) {
	ctx, span := r.tracer.Start(ctx, "registrar.UpdateStatus",
		trace.WithAttributes(
			attribute.String("entry_code", code),
			attribute.String("status", string(status))))
	defer span.End()

	if !status.Valid() {
		return StatusOutcome{}, dErrors.New(dErrors.CodeInvalidInput, "unknown status "+string(status))
	}

	outcome := StatusOutcome{
		Relational: r.attemptStatus(ctx, "relational", code, status, r.members.UpdateStatus),
		Sheet:      r.attemptStatus(ctx, "sheet", code, status, r.sheet.UpdateStatus),
	}

	if outcome.Relational == ResultUpdated || outcome.Sheet == ResultUpdated {
		r.emit(audit.Event{
			Action:    audit.ActionMemberStatusChanged,
			EntryCode: code,
			Detail:    string(status),
		})
		return outcome, nil
	}

	switch {
	case outcome.Relational == ResultUnchanged || outcome.Sheet == ResultUnchanged:
		return outcome, sentinel.ErrUnchanged
	case outcome.Relational == ResultNotFound && outcome.Sheet == ResultNotFound:
		return outcome, sentinel.ErrNotFound
	default:
		return outcome, dErrors.New(dErrors.CodeUnavailable, "status update failed in both stores")
	}
}

// List returns all members from the relational store, which alone carries
// the identity fields.
func (r *Registrar) List(ctx context.Context) ([]*models.Member, error) {
	return r.members.List(ctx)
}

// FindByEntryCode looks the member up in the relational store.
func (r *Registrar) FindByEntryCode(ctx context.Context, code string) (*models.Member, error) {
	return r.members.FindByEntryCode(ctx, code)
}

func (r *Registrar) attemptStatus(ctx context.Context, store, code string, status models.Status, update func(context.Context, string, models.Status) error) StoreResult {
	result := ResultUpdated
	switch err := update(ctx, code, status); {
	case err == nil:
	case errors.Is(err, sentinel.ErrUnchanged):
		result = ResultUnchanged
	case errors.Is(err, sentinel.ErrNotFound):
		result = ResultNotFound
	default:
		result = ResultFailed
		r.log.Error("status update failed", "store", store, "entry_code", code, "error", err)
	}
	if r.metrics != nil {
		r.metrics.StatusUpdates.WithLabelValues(store, string(result)).Inc()
	}
	return result
}

// codeExists reports a code taken when either store knows it.
func (r *Registrar) codeExists(ctx context.Context, code string) (bool, error) {
	taken, err := r.members.EntryCodeExists(ctx, code)
	if err != nil || taken {
		return taken, err
	}
	return r.sheet.EntryCodeExists(ctx, code)
}

func (r *Registrar) buildMember(code, userID string, answers models.Answers) *models.Member {
	filePath := answers.Get(models.FieldFileUpload)
	if filePath == "" {
		filePath = models.NoFileUploaded
	}
	return &models.Member{
		EntryCode:      code,
		UserID:         userID,
		FullName:       answers.Get(models.FieldFullName),
		Email:          answers.Get(models.FieldEmail),
		Phone:          answers.Get(models.FieldPhone),
		DateOfBirth:    answers.Get(models.FieldDateOfBirth),
		NationalID:     answers.Get(models.FieldNationalID),
		PassportNumber: answers.Get(models.FieldPassportNumber),
		TaxPIN:         answers.Get(models.FieldTaxPIN),
		FilePath:       filePath,
		RegisteredAt:   r.clock().UTC(),
		Status:         models.StatusActive,
	}
}

func (r *Registrar) emit(event audit.Event) {
	if r.auditor != nil {
		r.auditor.Emit(event)
	}
}
