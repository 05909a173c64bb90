// Package bot routes chat messages into the onboarding engine and the
// registrar. It is chat-platform-agnostic: a transport implements Chat
// for outbound delivery and calls HandleMessage for inbound traffic.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"enroll/internal/onboarding/engine"
	"enroll/internal/onboarding/models"
	"enroll/internal/onboarding/registrar"
	"enroll/pkg/platform/audit"
	"enroll/pkg/platform/sentinel"
)

// MessageLimit is the largest message the chat platform accepts; longer
// renderings are split into chunks.
const MessageLimit = 2000

// Chat delivers outbound messages to a user.
type Chat interface {
	Send(ctx context.Context, userID, text string) error
}

// RegistrarService is the registrar surface the adapter needs.
type RegistrarService interface {
	Register(ctx context.Context, userID string, answers models.Answers) (*registrar.Registration, error)
	UpdateStatus(ctx context.Context, code string, status models.Status) (registrar.StatusOutcome, error)
	FindByEntryCode(ctx context.Context, code string) (*models.Member, error)
	List(ctx context.Context) ([]*models.Member, error)
}

const helpText = `Available commands:
!start - begin a new registration (restarts any in-progress one)
!status <entry code> - look up a registration
!status <entry code> activate|deactivate|suspend - change a registration's status
!status - list all registrations
!helpme - show this message

During registration, just answer the questions as they come.`

// Adapter is the conversational front of the onboarding flow.
type Adapter struct {
	chat      Chat
	engine    *engine.Engine
	registrar RegistrarService
	limiter   Limiter
	auditor   *audit.Publisher
	log       *slog.Logger

	locks sync.Map // userID -> *sync.Mutex
}

// Option configures an Adapter.
type Option func(*Adapter)

func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

// WithLimiter enables flood control.
func WithLimiter(l Limiter) Option {
	return func(a *Adapter) { a.limiter = l }
}

// WithAuditor enables audit trail emission for session starts.
func WithAuditor(p *audit.Publisher) Option {
	return func(a *Adapter) { a.auditor = p }
}

// New constructs an Adapter.
func New(chat Chat, eng *engine.Engine, reg RegistrarService, opts ...Option) *Adapter {
	a := &Adapter{
		chat:      chat,
		engine:    eng,
		registrar: reg,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HandleMessage processes one inbound message. Messages from the same
// user are serialized; different users proceed in parallel.
func (a *Adapter) HandleMessage(ctx context.Context, userID, text string, attachments []engine.Attachment) error {
	if a.limiter != nil {
		allowed, err := a.limiter.Allow(ctx, userID)
		if err != nil {
			// Fail open: losing flood control beats losing the bot.
			a.log.WarnContext(ctx, "flood check failed", "user_id", userID, "error", err)
		} else if !allowed {
			return a.send(ctx, userID, "You're sending messages too quickly. Give it a moment and try again.")
		}
	}

	mu, _ := a.locks.LoadOrStore(userID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "!") {
		return a.handleCommand(ctx, userID, text)
	}
	return a.advance(ctx, userID, text, attachments)
}

func (a *Adapter) handleCommand(ctx context.Context, userID, text string) error {
	fields := strings.Fields(text)
	switch strings.ToLower(fields[0]) {
	case "!start":
		reply := a.engine.Start(ctx, userID)
		if a.auditor != nil {
			a.auditor.Emit(audit.Event{Action: audit.ActionOnboardingStarted, UserID: userID})
		}
		return a.send(ctx, userID, "Welcome! Let's get you registered.\n"+reply.Prompt)
	case "!helpme":
		return a.send(ctx, userID, helpText)
	case "!status":
		return a.handleStatus(ctx, userID, fields[1:])
	default:
		return a.send(ctx, userID, "Unknown command. Send !helpme for the list.")
	}
}

func (a *Adapter) handleStatus(ctx context.Context, userID string, args []string) error {
	switch len(args) {
	case 0:
		return a.sendMemberList(ctx, userID)
	case 1:
		member, err := a.registrar.FindByEntryCode(ctx, args[0])
		if errors.Is(err, sentinel.ErrNotFound) {
			return a.send(ctx, userID, "No record found for entry code "+strings.ToUpper(args[0])+".")
		}
		if err != nil {
			a.log.ErrorContext(ctx, "status lookup failed", "entry_code", args[0], "error", err)
			return a.send(ctx, userID, "Couldn't look that up right now. Try again later.")
		}
		return a.send(ctx, userID, fmt.Sprintf("Entry code %s: %s (%s)", member.EntryCode, member.FullName, member.Status))
	case 2:
		return a.updateStatus(ctx, userID, args[0], args[1])
	default:
		return a.send(ctx, userID, "Usage: !status <entry code> [activate|deactivate|suspend]")
	}
}

func (a *Adapter) updateStatus(ctx context.Context, userID, code, action string) error {
	status, ok := models.ParseStatusAction(strings.ToLower(action))
	if !ok {
		return a.send(ctx, userID, "Unknown action. Use activate, deactivate or suspend.")
	}

	code = strings.ToUpper(code)
	_, err := a.registrar.UpdateStatus(ctx, code, status)
	switch {
	case err == nil:
		return a.send(ctx, userID, fmt.Sprintf("Entry code %s is now %s.", code, status))
	case errors.Is(err, sentinel.ErrUnchanged):
		return a.send(ctx, userID, fmt.Sprintf("Entry code %s is already %s.", code, status))
	case errors.Is(err, sentinel.ErrNotFound):
		return a.send(ctx, userID, "No record found for entry code "+code+".")
	default:
		a.log.ErrorContext(ctx, "status update failed", "entry_code", code, "error", err)
		return a.send(ctx, userID, "Couldn't update the status right now. Try again later.")
	}
}

var statusMarkers = map[models.Status]string{
	models.StatusActive:    "[active]",
	models.StatusInactive:  "[inactive]",
	models.StatusSuspended: "[suspended]",
}

func (a *Adapter) sendMemberList(ctx context.Context, userID string) error {
	members, err := a.registrar.List(ctx)
	if err != nil {
		a.log.ErrorContext(ctx, "member list failed", "error", err)
		return a.send(ctx, userID, "Couldn't fetch the member list right now. Try again later.")
	}
	if len(members) == 0 {
		return a.send(ctx, userID, "No registrations yet.")
	}

	lines := make([]string, 0, len(members)+1)
	lines = append(lines, "Registered members:")
	for _, m := range members {
		lines = append(lines, fmt.Sprintf("%s %s: %s", statusMarkers[m.Status], m.EntryCode, m.FullName))
	}
	for _, chunk := range chunkLines(lines, MessageLimit) {
		if err := a.chat.Send(ctx, userID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) advance(ctx context.Context, userID, text string, attachments []engine.Attachment) error {
	reply, err := a.engine.Advance(ctx, userID, text, attachments)
	if errors.Is(err, engine.ErrNoSession) {
		return a.send(ctx, userID, "No registration in progress. Send !start to begin.")
	}

	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		return a.send(ctx, userID, verr.Reason+"\n"+reply.Prompt)
	}
	if err != nil {
		a.log.ErrorContext(ctx, "advance failed", "user_id", userID, "error", err)
		return a.send(ctx, userID, "Something went wrong. Try that again.")
	}

	if !reply.Done {
		return a.send(ctx, userID, reply.Prompt)
	}
	return a.finish(ctx, userID, reply.Answers)
}

// finish persists the answers. On failure the session stays alive so the
// next message retries.
func (a *Adapter) finish(ctx context.Context, userID string, answers models.Answers) error {
	reg, err := a.registrar.Register(ctx, userID, answers)
	if err != nil {
		a.log.ErrorContext(ctx, "registration persist failed", "user_id", userID, "error", err)
		return a.send(ctx, userID, "We couldn't save your registration just now. Send any message to try again.")
	}

	a.engine.End(ctx, userID)
	if reg.Partial {
		a.log.WarnContext(ctx, "registration saved partially", "user_id", userID, "entry_code", reg.EntryCode)
	}
	return a.send(ctx, userID,
		"Registration complete! Your entry code is: "+reg.EntryCode+
			"\nKeep it safe; you'll need it for any follow-up.")
}

func (a *Adapter) send(ctx context.Context, userID, text string) error {
	for _, chunk := range chunkLines(strings.Split(text, "\n"), MessageLimit) {
		if err := a.chat.Send(ctx, userID, chunk); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// chunkLines packs lines into messages no longer than limit, never
// splitting a line unless it alone exceeds the limit.
func chunkLines(lines []string, limit int) []string {
	var chunks []string
	var b strings.Builder
	for _, line := range lines {
		for len(line) > limit {
			chunks = appendChunk(chunks, &b)
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if b.Len() > 0 && b.Len()+1+len(line) > limit {
			chunks = appendChunk(chunks, &b)
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return appendChunk(chunks, &b)
}

func appendChunk(chunks []string, b *strings.Builder) []string {
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
		b.Reset()
	}
	return chunks
}
