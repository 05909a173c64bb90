// Package engine drives the onboarding conversation: one branching
// question sequence per user, answer validation, and completion detection.
// Persistence is the caller's job once Advance reports Done.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"enroll/internal/onboarding/models"
	"enroll/internal/onboarding/validate"
	"enroll/internal/platform/metrics"
)

// Attachment is the transport-side handle to an uploaded file.
type Attachment interface {
	Filename() string
	Save(ctx context.Context, path string) error
}

// FileStore persists one attachment and returns its stored path.
type FileStore interface {
	Save(ctx context.Context, userID string, att Attachment) (string, error)
}

// Reply is what the engine wants said back to the user. When Done is set,
// Answers carries the complete set and the caller must persist it, then
// call End on success.
type Reply struct {
	Prompt  string
	Done    bool
	Answers models.Answers
}

// ErrNoSession is returned when Advance is called for a user who never
// started (or whose session was already completed or expired).
var ErrNoSession = errors.New("no onboarding session for user")

// ValidationError rejects a single answer. It is non-fatal: the session
// cursor does not move and the accompanying Reply re-issues the same prompt.
type ValidationError struct {
	Field  models.Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var prompts = map[models.Field]string{
	models.FieldFullName:       "What is your full name?",
	models.FieldEmail:          "What is your email address?",
	models.FieldPhone:          "What is your phone number?",
	models.FieldDateOfBirth:    "What is your date of birth? (DD/MM/YYYY)",
	models.FieldIdentityChoice: "Do you have a National ID? (yes/no) - If no, you'll be asked for your passport number",
	models.FieldNationalID:     "Please enter your National ID number (5-9 digits):",
	models.FieldPassportNumber: "Please enter your passport number (2 letters followed by 5 digits, e.g. AB12345):",
	models.FieldTaxChoice:      "Would you like to provide your tax PIN? (yes/no)",
	models.FieldTaxPIN:         "Please enter your tax PIN (11 alphanumeric characters):",
	models.FieldUploadChoice:   "Would you like to upload a supporting document? (yes/no)",
	models.FieldFileUpload:     "Please upload your file by dragging and dropping it into this chat, or type 'skip' to continue without one.",
}

// Engine advances onboarding sessions. Different users may advance in
// parallel; the caller serializes delivery per user.
type Engine struct {
	sessions *Sessions
	files    FileStore
	log      *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock sets the time source for testability.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New constructs an Engine around the given session table and file store.
func New(sessions *Sessions, files FileStore, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		files:    files,
		log:      slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates a fresh session for userID, discarding any in-progress one,
// and returns the first prompt.
func (e *Engine) Start(ctx context.Context, userID string) Reply {
	now := e.clock()
	e.sessions.Put(ctx, &models.Session{
		UserID:    userID,
		Answers:   make(models.Answers),
		Awaiting:  models.FieldFullName,
		StartedAt: now,
		UpdatedAt: now,
	})
	if e.metrics != nil {
		e.metrics.SessionsStarted.Inc()
	}
	e.log.InfoContext(ctx, "onboarding session started", "user_id", userID)
	return Reply{Prompt: prompts[models.FieldFullName]}
}

// Advance feeds the next inbound answer into the user's session. On a
// validation failure the cursor stays put and the returned Reply repeats
// the current prompt; the error explains why.
func (e *Engine) Advance(ctx context.Context, userID, text string, attachments []Attachment) (Reply, error) {
	sess := e.sessions.Touch(ctx, userID, e.clock())
	if sess == nil {
		return Reply{}, ErrNoSession
	}

	reply, verr := e.apply(ctx, sess, strings.TrimSpace(text), attachments)
	if verr != nil {
		if e.metrics != nil {
			e.metrics.ValidationFailures.WithLabelValues(string(verr.Field)).Inc()
		}
		e.log.DebugContext(ctx, "answer rejected",
			"user_id", userID, "field", verr.Field, "reason", verr.Reason)
		return Reply{Prompt: prompts[sess.Awaiting]}, verr
	}
	if reply.Done {
		reply.Answers = sess.Answers.Clone()
		e.log.InfoContext(ctx, "onboarding answers complete", "user_id", userID)
	}
	return reply, nil
}

// End drops the session after a successful dual write. Callers keep the
// session (for retry) when persistence fails.
func (e *Engine) End(ctx context.Context, userID string) {
	e.sessions.Delete(ctx, userID)
}

// SweepIdle drops sessions idle longer than ttl, every interval, until ctx
// is cancelled.
func (e *Engine) SweepIdle(ctx context.Context, ttl, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if dropped := e.sessions.DropIdleBefore(e.clock().Add(-ttl)); dropped > 0 {
				if e.metrics != nil {
					e.metrics.SessionsExpired.Add(float64(dropped))
				}
				e.log.InfoContext(ctx, "dropped idle onboarding sessions", "count", dropped)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) apply(ctx context.Context, sess *models.Session, input string, attachments []Attachment) (Reply, *ValidationError) {
	switch sess.Awaiting {
	// A completed session only survives a failed persist. Any further
	// message re-delivers the answers so the caller can retry.
	case "":
		return e.complete(sess), nil

	case models.FieldFullName:
		if input == "" {
			return Reply{}, &ValidationError{Field: models.FieldFullName, Reason: "name cannot be empty"}
		}
		sess.Answers[models.FieldFullName] = input
		return e.moveTo(sess, models.FieldEmail), nil

	case models.FieldEmail:
		if input == "" {
			return Reply{}, &ValidationError{Field: models.FieldEmail, Reason: "email cannot be empty"}
		}
		sess.Answers[models.FieldEmail] = strings.ToLower(input)
		return e.moveTo(sess, models.FieldPhone), nil

	case models.FieldPhone:
		if input == "" {
			return Reply{}, &ValidationError{Field: models.FieldPhone, Reason: "phone number cannot be empty"}
		}
		sess.Answers[models.FieldPhone] = input
		return e.moveTo(sess, models.FieldDateOfBirth), nil

	case models.FieldDateOfBirth:
		if !validate.DateOfBirth(input) {
			return Reply{}, &ValidationError{Field: models.FieldDateOfBirth, Reason: "use the format DD/MM/YYYY"}
		}
		sess.Answers[models.FieldDateOfBirth] = input
		return e.moveTo(sess, models.FieldIdentityChoice), nil

	case models.FieldIdentityChoice:
		yes, ok := validate.YesNo(input)
		if !ok {
			return Reply{}, &ValidationError{Field: models.FieldIdentityChoice, Reason: "please answer yes or no"}
		}
		if yes {
			sess.Answers[models.FieldIdentityChoice] = "yes"
			return e.moveTo(sess, models.FieldNationalID), nil
		}
		sess.Answers[models.FieldIdentityChoice] = "no"
		return e.moveTo(sess, models.FieldPassportNumber), nil

	case models.FieldNationalID:
		if !validate.NationalID(input) {
			return Reply{}, &ValidationError{Field: models.FieldNationalID, Reason: "enter 5 to 9 digits"}
		}
		sess.Answers[models.FieldNationalID] = input
		return e.moveTo(sess, models.FieldTaxChoice), nil

	case models.FieldPassportNumber:
		upper := strings.ToUpper(input)
		if !validate.PassportNumber(upper) {
			return Reply{}, &ValidationError{Field: models.FieldPassportNumber, Reason: "format is 2 letters followed by 5 digits, e.g. AB12345"}
		}
		sess.Answers[models.FieldPassportNumber] = upper
		return e.moveTo(sess, models.FieldTaxChoice), nil

	case models.FieldTaxChoice:
		yes, ok := validate.YesNo(input)
		if !ok {
			return Reply{}, &ValidationError{Field: models.FieldTaxChoice, Reason: "please answer yes or no"}
		}
		if yes {
			sess.Answers[models.FieldTaxChoice] = "yes"
			return e.moveTo(sess, models.FieldTaxPIN), nil
		}
		sess.Answers[models.FieldTaxChoice] = "no"
		sess.Answers[models.FieldTaxPIN] = models.TaxNotProvided
		return e.moveTo(sess, models.FieldUploadChoice), nil

	case models.FieldTaxPIN:
		upper := strings.ToUpper(input)
		if !validate.TaxPIN(upper) {
			return Reply{}, &ValidationError{Field: models.FieldTaxPIN, Reason: "must be exactly 11 alphanumeric characters"}
		}
		sess.Answers[models.FieldTaxPIN] = upper
		return e.moveTo(sess, models.FieldUploadChoice), nil

	case models.FieldUploadChoice:
		lower := strings.ToLower(input)
		if yes, ok := validate.YesNo(lower); ok && yes {
			sess.Answers[models.FieldUploadChoice] = "yes"
			return e.moveTo(sess, models.FieldFileUpload), nil
		} else if ok || lower == "skip" {
			sess.Answers[models.FieldUploadChoice] = "no"
			sess.Answers[models.FieldFileUpload] = models.NoFileUploaded
			return e.complete(sess), nil
		}
		return Reply{}, &ValidationError{Field: models.FieldUploadChoice, Reason: "please answer yes or no"}

	case models.FieldFileUpload:
		if strings.EqualFold(input, "skip") {
			sess.Answers[models.FieldFileUpload] = models.NoFileUploaded
			return e.complete(sess), nil
		}
		if len(attachments) == 0 {
			return Reply{}, &ValidationError{Field: models.FieldFileUpload, Reason: "attach a file or type 'skip'"}
		}
		path, err := e.files.Save(ctx, sess.UserID, attachments[0])
		if err != nil {
			e.log.WarnContext(ctx, "attachment save failed", "user_id", sess.UserID, "error", err)
			return Reply{}, &ValidationError{Field: models.FieldFileUpload, Reason: "could not store the file; try again or type 'skip'"}
		}
		sess.Answers[models.FieldFileUpload] = path
		return e.complete(sess), nil
	}

	return Reply{}, &ValidationError{Field: sess.Awaiting, Reason: "unexpected input"}
}

func (e *Engine) moveTo(sess *models.Session, next models.Field) Reply {
	sess.Awaiting = next
	return Reply{Prompt: prompts[next]}
}

func (e *Engine) complete(sess *models.Session) Reply {
	sess.Awaiting = ""
	return Reply{Done: true}
}
