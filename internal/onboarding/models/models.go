package models

import "time"

// Status tracks a member's standing. Only status is mutable after
// registration; the entry code is never reassigned.
type Status string

const (
	StatusActive    Status = "Active"
	StatusInactive  Status = "Inactive"
	StatusSuspended Status = "Suspended"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// ParseStatusAction maps the bot command verbs onto target statuses.
func ParseStatusAction(action string) (Status, bool) {
	switch action {
	case "activate":
		return StatusActive, true
	case "deactivate":
		return StatusInactive, true
	case "suspend":
		return StatusSuspended, true
	}
	return "", false
}

// Field names a single answer collected during onboarding. The engine's
// awaiting cursor is always one of these.
type Field string

const (
	FieldFullName       Field = "full_name"
	FieldEmail          Field = "email"
	FieldPhone          Field = "phone"
	FieldDateOfBirth    Field = "date_of_birth"
	FieldIdentityChoice Field = "identity_choice"
	FieldNationalID     Field = "national_id"
	FieldPassportNumber Field = "passport_number"
	FieldTaxChoice      Field = "tax_choice"
	FieldTaxPIN         Field = "tax_pin"
	FieldUploadChoice   Field = "upload_choice"
	FieldFileUpload     Field = "file_upload"
)

// TaxNotProvided is the sentinel value recorded when the user declines to
// share a tax PIN.
const TaxNotProvided = "Not provided"

// NoFileUploaded is recorded when the user skips the attachment step.
const NoFileUploaded = "No file uploaded"

// Answers is the accumulated answer set for one onboarding attempt.
// Completeness is checked by key presence, not insertion order.
type Answers map[Field]string

// Get returns the answer for field, or empty when unanswered.
func (a Answers) Get(field Field) string { return a[field] }

// Has reports whether field has been answered.
func (a Answers) Has(field Field) bool {
	_, ok := a[field]
	return ok
}

// Clone returns an independent copy so callers can hold answers after the
// session is discarded.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Session is the ephemeral per-user onboarding state. It lives only in
// memory; a restart or a fresh start command discards it.
type Session struct {
	UserID    string
	Answers   Answers
	Awaiting  Field
	StartedAt time.Time
	UpdatedAt time.Time
}

// Member is the persisted onboarding record. The relational store holds the
// full struct; the sheet store receives a reduced row without the identity
// and tax fields.
type Member struct {
	EntryCode      string
	UserID         string
	FullName       string
	Email          string
	Phone          string
	DateOfBirth    string
	NationalID     string
	PassportNumber string
	TaxPIN         string
	FilePath       string
	RegisteredAt   time.Time
	Status         Status
}

// SheetRow is one line of the human-editable sheet. Column order is fixed
// and must match SheetColumns.
type SheetRow struct {
	EntryCode        string
	UserID           string
	FullName         string
	Email            string
	Phone            string
	DateOfBirth      string
	FilePath         string
	RegistrationDate string
	Status           Status
}

// SheetColumns is the canonical header of the sheet file. Older files with
// missing columns are upgraded with empty defaults on load.
var SheetColumns = []string{
	"Entry Code",
	"User ID",
	"Full Name",
	"Email",
	"Phone",
	"Date of Birth",
	"File Path",
	"Registration Date",
	"Status",
}

// SheetTimeLayout formats registration dates in the sheet.
const SheetTimeLayout = "2006-01-02 15:04:05"

// SheetRowFromMember projects a member onto the reduced sheet schema.
// Identity and tax numbers stay in the relational store only.
func SheetRowFromMember(m *Member) SheetRow {
	return SheetRow{
		EntryCode:        m.EntryCode,
		UserID:           m.UserID,
		FullName:         m.FullName,
		Email:            m.Email,
		Phone:            m.Phone,
		DateOfBirth:      m.DateOfBirth,
		FilePath:         m.FilePath,
		RegistrationDate: m.RegisteredAt.Format(SheetTimeLayout),
		Status:           m.Status,
	}
}
