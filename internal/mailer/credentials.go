package mailer

import (
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
)

// Credentials produces the SASL client used to authenticate a session.
type Credentials interface {
	SASLClient(ctx context.Context) (sasl.Client, error)
}

// PlainAuth authenticates with SASL PLAIN, e.g. a Gmail app password.
type PlainAuth struct {
	Username string
	Password string
}

// SASLClient implements Credentials.
func (a PlainAuth) SASLClient(context.Context) (sasl.Client, error) {
	return sasl.NewPlainClient("", a.Username, a.Password), nil
}

type accessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// OAuthBearer authenticates with SASL OAUTHBEARER (RFC 7628) using a
// fresh access token for every session.
type OAuthBearer struct {
	Username string
	Host     string
	Port     int
	Tokens   accessTokenSource
}

// SASLClient implements Credentials.
func (a OAuthBearer) SASLClient(ctx context.Context) (sasl.Client, error) {
	tok, err := a.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("Tokens.AccessToken failed: %w", err)
	}

	return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: a.Username,
		Token:    tok,
		Host:     a.Host,
		Port:     a.Port,
	}), nil
}
