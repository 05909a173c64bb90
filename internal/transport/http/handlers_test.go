package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	jwttoken "enroll/internal/jwt_token"
	"enroll/internal/onboarding/models"
	"enroll/internal/onboarding/registrar"
	"enroll/pkg/platform/sentinel"
)

type fakeService struct {
	members       []*models.Member
	statusOutcome registrar.StatusOutcome
	statusErr     error
}

func (f *fakeService) List(context.Context) ([]*models.Member, error) {
	return f.members, nil
}

func (f *fakeService) FindByEntryCode(_ context.Context, code string) (*models.Member, error) {
	for _, m := range f.members {
		if m.EntryCode == code {
			return m, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (f *fakeService) UpdateStatus(context.Context, string, models.Status) (registrar.StatusOutcome, error) {
	return f.statusOutcome, f.statusErr
}

type HandlersSuite struct {
	suite.Suite
	service *fakeService
	server  *httptest.Server
	token   string
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	s.Require().NoError(err)

	s.service = &fakeService{
		members: []*models.Member{{
			EntryCode:    "AAAA1111",
			UserID:       "user-1",
			FullName:     "Jane Doe",
			Email:        "jane@example.com",
			NationalID:   "12345678",
			RegisteredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Status:       models.StatusActive,
		}},
		statusOutcome: registrar.StatusOutcome{
			Relational: registrar.ResultUpdated,
			Sheet:      registrar.ResultUpdated,
		},
	}

	tokens := jwttoken.NewJWTService("test-key", "enroll", "enroll-admin")
	handler := New(s.service, tokens, string(hash), slog.New(slog.DiscardHandler))
	s.server = httptest.NewServer(NewRouter(handler))
	s.T().Cleanup(s.server.Close)

	s.token = s.fetchToken("hunter2", http.StatusOK)
}

func (s *HandlersSuite) fetchToken(password string, wantStatus int) string {
	body, _ := json.Marshal(map[string]string{"password": password})
	resp, err := http.Post(s.server.URL+"/auth/token", "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(wantStatus, resp.StatusCode)
	if wantStatus != http.StatusOK {
		return ""
	}
	var out tokenResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	s.Require().NotEmpty(out.AccessToken)
	return out.AccessToken
}

func (s *HandlersSuite) do(method, path, token string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlersSuite) TestHealthzIsOpen() {
	resp, err := http.Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlersSuite) TestTokenRejectsBadPassword() {
	s.fetchToken("wrong", http.StatusUnauthorized)
}

func (s *HandlersSuite) TestMembersRequireAuth() {
	resp := s.do(http.MethodGet, "/members", "", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlersSuite) TestMembersRejectGarbageToken() {
	resp := s.do(http.MethodGet, "/members", "not-a-token", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlersSuite) TestListMembers() {
	resp := s.do(http.MethodGet, "/members", s.token, nil)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var out struct {
		Members []memberResponse `json:"members"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	s.Require().Len(out.Members, 1)
	s.Equal("AAAA1111", out.Members[0].EntryCode)
	s.Equal("Jane Doe", out.Members[0].FullName)
}

func (s *HandlersSuite) TestGetMember() {
	resp := s.do(http.MethodGet, "/members/AAAA1111", s.token, nil)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var out memberResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	s.Equal("12345678", out.NationalID)

	resp = s.do(http.MethodGet, "/members/ZZZZ9999", s.token, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlersSuite) TestUpdateStatus() {
	resp := s.do(http.MethodPut, "/members/AAAA1111/status", s.token, statusRequest{Status: "Inactive"})
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var out statusResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	s.Equal("updated", out.Relational)
	s.Equal("updated", out.Sheet)
}

func (s *HandlersSuite) TestUpdateStatusRejectsUnknownStatus() {
	resp := s.do(http.MethodPut, "/members/AAAA1111/status", s.token, statusRequest{Status: "Frozen"})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestUpdateStatusAlreadyInStatus() {
	s.service.statusErr = sentinel.ErrUnchanged
	resp := s.do(http.MethodPut, "/members/AAAA1111/status", s.token, statusRequest{Status: "Active"})
	defer resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *HandlersSuite) TestUpdateStatusUnknownCode() {
	s.service.statusErr = sentinel.ErrNotFound
	resp := s.do(http.MethodPut, "/members/ZZZZ9999/status", s.token, statusRequest{Status: "Active"})
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlersSuite) TestTokenEndpointDisabledWithoutHash() {
	tokens := jwttoken.NewJWTService("test-key", "enroll", "enroll-admin")
	handler := New(s.service, tokens, "", slog.New(slog.DiscardHandler))
	server := httptest.NewServer(NewRouter(handler))
	defer server.Close()

	body, _ := json.Marshal(map[string]string{"password": "hunter2"})
	resp, err := http.Post(server.URL+"/auth/token", "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}
