package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/hal9000y/email-mcp/internal/auth"
)

type tokMock struct {
	token       *oauth2.Token
	redirectErr error
	codes       []string
}

func (m *tokMock) AuthorizeCode(_ context.Context, code, state string) error {
	if state != "good-state" {
		return errors.New("invalid or expired state parameter")
	}
	m.codes = append(m.codes, code)
	return nil
}

func (m *tokMock) OAuthToken() (*oauth2.Token, error) {
	if m.token == nil {
		return nil, auth.ErrTokenNotSet
	}
	return m.token, nil
}

func (m *tokMock) RedirectURL() (string, error) {
	if m.redirectErr != nil {
		return "", m.redirectErr
	}
	return "https://accounts.example.com/auth?state=good-state", nil
}

func TestHTTPHandler(t *testing.T) {
	expiry := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name         string
		tok          *tokMock
		target       string
		expectedCode int
		location     string
		body         string
	}{
		{
			name:         "redirect_to_consent",
			tok:          &tokMock{},
			target:       "/oauth?redirect=1",
			expectedCode: http.StatusFound,
			location:     "https://accounts.example.com/auth?state=good-state",
		},
		{
			name:         "redirect_url_error",
			tok:          &tokMock{redirectErr: errors.New("no entropy")},
			target:       "/oauth?redirect=1",
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:         "code_accepted",
			tok:          &tokMock{},
			target:       "/oauth?code=abc&state=good-state",
			expectedCode: http.StatusFound,
			location:     "/oauth",
		},
		{
			name:         "code_with_bad_state",
			tok:          &tokMock{},
			target:       "/oauth?code=abc&state=forged",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "no_token",
			tok:          &tokMock{},
			target:       "/oauth",
			expectedCode: http.StatusUnauthorized,
			body:         "Token not found",
		},
		{
			name:         "token_status_masked",
			tok:          &tokMock{token: &oauth2.Token{AccessToken: "secret-token-1234", Expiry: expiry}},
			target:       "/oauth",
			expectedCode: http.StatusOK,
			body:         "Token: XXXXXXXXXXXXX1234, expires: 2026-01-02T03:04:05Z",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)

			auth.NewHTTPHandler(tc.tok).ServeHTTP(rec, req)

			require.Equal(t, tc.expectedCode, rec.Code)
			if tc.location != "" {
				assert.Equal(t, tc.location, rec.Header().Get("Location"))
			}
			if tc.body != "" {
				assert.Contains(t, rec.Body.String(), tc.body)
			}
		})
	}
}

func TestHTTPHandlerRecordsCode(t *testing.T) {
	tok := &tokMock{}
	rec := httptest.NewRecorder()

	auth.NewHTTPHandler(tok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth?code=xyz&state=good-state", nil))

	assert.Equal(t, []string{"xyz"}, tok.codes)
}
