package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enroll/internal/onboarding/models"
)

type fakeAttachment struct {
	name    string
	saveErr error
}

func (a *fakeAttachment) Filename() string { return a.name }

func (a *fakeAttachment) Save(context.Context, string) error { return a.saveErr }

// fakeFileStore records saves and can be told to fail.
type fakeFileStore struct {
	saved []string
	err   error
}

func (f *fakeFileStore) Save(_ context.Context, userID string, att Attachment) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := "user_documents/" + userID + "/" + att.Filename()
	f.saved = append(f.saved, path)
	return path, nil
}

type EngineSuite struct {
	suite.Suite
	engine *Engine
	files  *fakeFileStore
	ctx    context.Context
}

func (s *EngineSuite) SetupTest() {
	s.files = &fakeFileStore{}
	s.engine = New(NewSessions(), s.files)
	s.ctx = context.Background()
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

// answerUpTo starts a session and feeds valid answers until the engine is
// awaiting the given field.
func (s *EngineSuite) answerUpTo(userID string, target models.Field) {
	s.engine.Start(s.ctx, userID)
	answers := []string{
		"Jane Doe",
		"jane@example.com",
		"+254700000001",
		"01/01/1990",
		"yes",          // identity choice -> national ID
		"12345678",     // national ID
		"yes",          // tax choice -> tax PIN
		"A0123456789",  // tax PIN
		"yes",          // upload choice -> file upload
	}
	for _, text := range answers {
		if s.awaiting(userID) == target {
			return
		}
		_, err := s.engine.Advance(s.ctx, userID, text, nil)
		s.Require().NoError(err, "advancing toward %s with %q", target, text)
	}
	s.Require().Equal(target, s.awaiting(userID))
}

func (s *EngineSuite) awaiting(userID string) models.Field {
	sess := s.engine.sessions.Get(s.ctx, userID)
	s.Require().NotNil(sess)
	return sess.Awaiting
}

func (s *EngineSuite) TestStart() {
	s.Run("returns the first prompt", func() {
		reply := s.engine.Start(s.ctx, "u1")
		s.Equal(prompts[models.FieldFullName], reply.Prompt)
		s.False(reply.Done)
	})

	s.Run("overwrites an in-progress session", func() {
		s.engine.Start(s.ctx, "u2")
		_, err := s.engine.Advance(s.ctx, "u2", "Jane Doe", nil)
		s.Require().NoError(err)

		s.engine.Start(s.ctx, "u2")
		sess := s.engine.sessions.Get(s.ctx, "u2")
		s.Empty(sess.Answers)
		s.Equal(models.FieldFullName, sess.Awaiting)
	})
}

func (s *EngineSuite) TestAdvanceWithoutSession() {
	_, err := s.engine.Advance(s.ctx, "stranger", "hello", nil)
	s.Require().ErrorIs(err, ErrNoSession)
}

func (s *EngineSuite) TestHappyPathWithNationalID() {
	s.engine.Start(s.ctx, "u1")

	answers := []string{
		"jane doe",
		"Jane@Example.COM",
		"+254700000001",
		"01/01/1990",
		"yes",
		"12345678",
		"no",
		"skip",
	}
	var reply Reply
	var err error
	for _, text := range answers {
		reply, err = s.engine.Advance(s.ctx, "u1", text, nil)
		s.Require().NoError(err, "answer %q", text)
	}

	s.Require().True(reply.Done)
	s.Equal("jane doe", reply.Answers.Get(models.FieldFullName))
	s.Equal("jane@example.com", reply.Answers.Get(models.FieldEmail), "email is lower-cased")
	s.Equal("12345678", reply.Answers.Get(models.FieldNationalID))
	s.False(reply.Answers.Has(models.FieldPassportNumber), "passport branch never taken")
	s.Equal(models.TaxNotProvided, reply.Answers.Get(models.FieldTaxPIN))
	s.Equal(models.NoFileUploaded, reply.Answers.Get(models.FieldFileUpload))
}

func (s *EngineSuite) TestIdentityBranch() {
	s.Run("yes routes to national ID and never touches passport", func() {
		s.answerUpTo("u1", models.FieldIdentityChoice)
		reply, err := s.engine.Advance(s.ctx, "u1", "yes", nil)
		s.Require().NoError(err)
		s.Equal(prompts[models.FieldNationalID], reply.Prompt)

		_, err = s.engine.Advance(s.ctx, "u1", "1234567", nil)
		s.Require().NoError(err)
		sess := s.engine.sessions.Get(s.ctx, "u1")
		s.Equal("1234567", sess.Answers.Get(models.FieldNationalID))
		s.False(sess.Answers.Has(models.FieldPassportNumber))
	})

	s.Run("no routes to passport with upper-cased validation", func() {
		s.answerUpTo("u2", models.FieldIdentityChoice)
		reply, err := s.engine.Advance(s.ctx, "u2", "no", nil)
		s.Require().NoError(err)
		s.Equal(prompts[models.FieldPassportNumber], reply.Prompt)

		_, err = s.engine.Advance(s.ctx, "u2", "ab12345", nil)
		s.Require().NoError(err)
		sess := s.engine.sessions.Get(s.ctx, "u2")
		s.Equal("AB12345", sess.Answers.Get(models.FieldPassportNumber))
		s.False(sess.Answers.Has(models.FieldNationalID))
	})

	s.Run("other answers re-prompt the choice", func() {
		s.answerUpTo("u3", models.FieldIdentityChoice)
		reply, err := s.engine.Advance(s.ctx, "u3", "maybe", nil)
		var verr *ValidationError
		s.Require().ErrorAs(err, &verr)
		s.Equal(models.FieldIdentityChoice, verr.Field)
		s.Equal(prompts[models.FieldIdentityChoice], reply.Prompt)
		s.Equal(models.FieldIdentityChoice, s.awaiting("u3"))
	})
}

func (s *EngineSuite) TestInvalidInputNeverAdvances() {
	cases := []struct {
		field models.Field
		input string
	}{
		{models.FieldFullName, ""},
		{models.FieldDateOfBirth, "31/02/1990"},
		{models.FieldNationalID, "123"},
		{models.FieldPassportNumber, "AB123456"},
		{models.FieldTaxChoice, "perhaps"},
		{models.FieldTaxPIN, "ABCDE12345"}, // 10 chars
		{models.FieldUploadChoice, "later"},
	}
	for _, tc := range cases {
		s.Run(string(tc.field), func() {
			userID := "user-" + string(tc.field)
			if tc.field == models.FieldPassportNumber {
				s.answerUpTo(userID, models.FieldIdentityChoice)
				_, err := s.engine.Advance(s.ctx, userID, "no", nil)
				s.Require().NoError(err)
			} else {
				s.answerUpTo(userID, tc.field)
			}
			before := s.engine.sessions.Get(s.ctx, userID).Answers.Clone()

			reply, err := s.engine.Advance(s.ctx, userID, tc.input, nil)
			var verr *ValidationError
			s.Require().ErrorAs(err, &verr)
			s.Equal(tc.field, verr.Field)
			s.Equal(tc.field, s.awaiting(userID), "cursor must not move")
			s.Equal(prompts[tc.field], reply.Prompt, "same prompt re-issued")
			s.Equal(before, s.engine.sessions.Get(s.ctx, userID).Answers, "answers untouched")
		})
	}
}

func (s *EngineSuite) TestTaxBranch() {
	s.Run("declining records the sentinel and skips to upload", func() {
		s.answerUpTo("u1", models.FieldTaxChoice)
		reply, err := s.engine.Advance(s.ctx, "u1", "no", nil)
		s.Require().NoError(err)
		s.Equal(prompts[models.FieldUploadChoice], reply.Prompt)
		sess := s.engine.sessions.Get(s.ctx, "u1")
		s.Equal(models.TaxNotProvided, sess.Answers.Get(models.FieldTaxPIN))
	})

	s.Run("accepting asks for the PIN and upper-cases it", func() {
		s.answerUpTo("u2", models.FieldTaxChoice)
		reply, err := s.engine.Advance(s.ctx, "u2", "yes", nil)
		s.Require().NoError(err)
		s.Equal(prompts[models.FieldTaxPIN], reply.Prompt)

		_, err = s.engine.Advance(s.ctx, "u2", "a0123456789", nil)
		s.Require().NoError(err)
		sess := s.engine.sessions.Get(s.ctx, "u2")
		s.Equal("A0123456789", sess.Answers.Get(models.FieldTaxPIN))
	})
}

func (s *EngineSuite) TestUploadStep() {
	s.Run("attachment is saved and completes the session", func() {
		s.answerUpTo("u1", models.FieldFileUpload)
		att := &fakeAttachment{name: "policy.pdf"}
		reply, err := s.engine.Advance(s.ctx, "u1", "", []Attachment{att})
		s.Require().NoError(err)
		s.True(reply.Done)
		s.Equal("user_documents/u1/policy.pdf", reply.Answers.Get(models.FieldFileUpload))
		s.Len(s.files.saved, 1)
	})

	s.Run("missing attachment re-prompts", func() {
		s.answerUpTo("u2", models.FieldFileUpload)
		_, err := s.engine.Advance(s.ctx, "u2", "here you go", nil)
		var verr *ValidationError
		s.Require().ErrorAs(err, &verr)
		s.Equal(models.FieldFileUpload, verr.Field)
		s.Equal(models.FieldFileUpload, s.awaiting("u2"))
	})

	s.Run("save failure re-prompts without losing the session", func() {
		s.files.err = errors.New("disk full")
		s.answerUpTo("u3", models.FieldFileUpload)
		_, err := s.engine.Advance(s.ctx, "u3", "", []Attachment{&fakeAttachment{name: "x.pdf"}})
		var verr *ValidationError
		s.Require().ErrorAs(err, &verr)
		s.Equal(models.FieldFileUpload, s.awaiting("u3"))
	})

	s.Run("skip mid-upload aborts the upload and completes", func() {
		s.answerUpTo("u4", models.FieldFileUpload)
		reply, err := s.engine.Advance(s.ctx, "u4", "skip", nil)
		s.Require().NoError(err)
		s.True(reply.Done)
		s.Equal(models.NoFileUploaded, reply.Answers.Get(models.FieldFileUpload))
	})

	s.Run("declining upload at the choice completes immediately", func() {
		s.answerUpTo("u5", models.FieldUploadChoice)
		reply, err := s.engine.Advance(s.ctx, "u5", "no", nil)
		s.Require().NoError(err)
		s.True(reply.Done)
		s.Equal(models.NoFileUploaded, reply.Answers.Get(models.FieldFileUpload))
	})
}

func (s *EngineSuite) TestCompletedSessionRedeliversAnswers() {
	s.answerUpTo("u1", models.FieldFileUpload)
	reply, err := s.engine.Advance(s.ctx, "u1", "skip", nil)
	s.Require().NoError(err)
	s.Require().True(reply.Done)

	// Persistence failed, the caller never called End. Any message makes
	// the engine hand the answers over again.
	again, err := s.engine.Advance(s.ctx, "u1", "retry please", nil)
	s.Require().NoError(err)
	s.True(again.Done)
	s.Equal(reply.Answers, again.Answers)
}

func (s *EngineSuite) TestEndRemovesSession() {
	s.engine.Start(s.ctx, "u1")
	s.engine.End(s.ctx, "u1")
	_, err := s.engine.Advance(s.ctx, "u1", "anything", nil)
	s.Require().ErrorIs(err, ErrNoSession)
}

func (s *EngineSuite) TestCompletedAnswersAreACopy() {
	s.answerUpTo("u1", models.FieldUploadChoice)
	reply, err := s.engine.Advance(s.ctx, "u1", "skip", nil)
	s.Require().NoError(err)
	s.Require().True(reply.Done)

	reply.Answers[models.FieldFullName] = "tampered"
	sess := s.engine.sessions.Get(s.ctx, "u1")
	s.NotEqual("tampered", sess.Answers.Get(models.FieldFullName))
}

func TestSessionsDropIdleBefore(t *testing.T) {
	sessions := NewSessions()
	ctx := context.Background()
	now := time.Now()

	sessions.Put(ctx, &models.Session{UserID: "old", UpdatedAt: now.Add(-2 * time.Hour)})
	sessions.Put(ctx, &models.Session{UserID: "fresh", UpdatedAt: now})

	dropped := sessions.DropIdleBefore(now.Add(-time.Hour))
	if dropped != 1 {
		t.Fatalf("expected 1 dropped session, got %d", dropped)
	}
	if sessions.Get(ctx, "old") != nil {
		t.Fatal("idle session should be gone")
	}
	if sessions.Get(ctx, "fresh") == nil {
		t.Fatal("fresh session should survive")
	}
}

func TestSessionsTouch(t *testing.T) {
	sessions := NewSessions()
	ctx := context.Background()
	now := time.Now()

	sessions.Put(ctx, &models.Session{UserID: "u1", UpdatedAt: now.Add(-time.Hour)})

	sess := sessions.Touch(ctx, "u1", now)
	if sess == nil {
		t.Fatal("expected the session back")
	}
	if !sess.UpdatedAt.Equal(now) {
		t.Fatalf("expected UpdatedAt %v, got %v", now, sess.UpdatedAt)
	}
	if sessions.Touch(ctx, "stranger", now) != nil {
		t.Fatal("expected nil for an unknown user")
	}
}

// Exercises Advance concurrently with the sweeper's scan-and-delete; run
// with -race.
func TestAdvanceConcurrentWithSweep(t *testing.T) {
	eng := New(NewSessions(), &fakeFileStore{})
	ctx := context.Background()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				eng.sessions.DropIdleBefore(time.Now())
			}
		}
	}()

	for i := 0; i < 500; i++ {
		if i%25 == 0 {
			eng.Start(ctx, "u1")
		}
		// The sweeper may drop the session between messages; ErrNoSession
		// is expected then.
		_, _ = eng.Advance(ctx, "u1", "Jane Doe", nil)
	}
	close(done)
	wg.Wait()
}
