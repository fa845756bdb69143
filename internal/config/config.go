// Package config defines the command line and environment configuration.
package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/hal9000y/email-mcp/internal/mailer"
)

// EnvFileVar names the variable that points at the .env file to load.
const EnvFileVar = "EMAIL_MCP_ENV_FILE"

const defaultEnvFile = ".env"

// SMTP authentication modes.
const (
	AuthPassword = "password"
	AuthOAuth2   = "oauth2"
)

// Config is the full process configuration.
// Every flag can also be set through its upper snake case environment
// variable, e.g. -smtp-host via SMTP_HOST.
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPSecurity string
	SMTPAuth     string

	EmailAddress     string
	EmailAppPassword string

	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenFile    string
	OAuthURL          string

	HTTPAddr string
	Stdio    bool
	LogFile  string
}

// RegisterFlags binds the configuration to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.SMTPHost, "smtp-host", "smtp.gmail.com", "SMTP relay host")
	fs.IntVar(&c.SMTPPort, "smtp-port", 587, "SMTP relay port")
	fs.StringVar(&c.SMTPSecurity, "smtp-security", string(mailer.SecurityStartTLS), "connection security: starttls, tls or none")
	fs.StringVar(&c.SMTPAuth, "smtp-auth", AuthPassword, "SMTP authentication: password or oauth2")

	fs.StringVar(&c.EmailAddress, "email-address", "", "sender address, also the SMTP username")
	fs.StringVar(&c.EmailAppPassword, "email-app-password", "", "SMTP password (app password for Gmail)")

	fs.StringVar(&c.OAuthClientID, "oauth-google-client-id", "", "Google OAuth client ID (oauth2 auth only)")
	fs.StringVar(&c.OAuthClientSecret, "oauth-google-client-secret", "", "Google OAuth client secret (oauth2 auth only)")
	fs.StringVar(&c.OAuthTokenFile, "oauth-token-file", "./data/email-mcp-token.json", "Path to cache google oauth token, empty to avoid storing")
	fs.StringVar(&c.OAuthURL, "oauth-url", "", "OAuth redirect URL, derived from the HTTP listener when empty")

	fs.StringVar(&c.HTTPAddr, "http-addr", "", "HTTP SERVER listen addr, empty disables HTTP (oauth2 auth defaults to localhost:0)")
	fs.BoolVar(&c.Stdio, "stdio", true, "Enable stdio transport for MCP")
	fs.StringVar(&c.LogFile, "log-file", "", "Path to log file")
}

// Options are the ff options the root flag set is parsed with.
func Options() []ff.Option {
	return []ff.Option{ff.WithEnvVars()}
}

// Command describes one command of the program. Exec receives the
// validated configuration.
type Command struct {
	Name       string
	ShortUsage string
	ShortHelp  string
	LongHelp   string
	Exec       func(ctx context.Context, cfg *Config) error
}

// NewCommand builds the ffcli tree. Flags and environment are parsed once,
// on the root; subcommands take no flags of their own and share its Config.
func NewCommand(root Command, subcommands ...Command) *ffcli.Command {
	cfg := &Config{}

	fs := flag.NewFlagSet(root.Name, flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	cmd := newCommand(root, cfg, fs)
	cmd.Options = Options()

	for _, sub := range subcommands {
		subFS := flag.NewFlagSet(root.Name+" "+sub.Name, flag.ContinueOnError)
		cmd.Subcommands = append(cmd.Subcommands, newCommand(sub, cfg, subFS))
	}

	return cmd
}

func newCommand(c Command, cfg *Config, fs *flag.FlagSet) *ffcli.Command {
	return &ffcli.Command{
		Name:       c.Name,
		ShortUsage: c.ShortUsage,
		ShortHelp:  c.ShortHelp,
		LongHelp:   c.LongHelp,
		FlagSet:    fs,
		Exec: func(ctx context.Context, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.Exec(ctx, cfg)
		},
	}
}

// Validate reports settings the process cannot start with.
// Missing SMTP credentials are allowed; sends fail at call time instead.
func (c *Config) Validate() error {
	var errs []error

	switch mailer.Security(c.SMTPSecurity) {
	case mailer.SecurityStartTLS, mailer.SecurityTLS, mailer.SecurityNone:
	default:
		errs = append(errs, fmt.Errorf("unsupported -smtp-security %q", c.SMTPSecurity))
	}

	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("-smtp-port %d out of range", c.SMTPPort))
	}

	switch c.SMTPAuth {
	case AuthPassword:
	case AuthOAuth2:
		if c.OAuthClientID == "" || c.OAuthClientSecret == "" {
			errs = append(errs, errors.New("OAUTH_GOOGLE_CLIENT_ID and OAUTH_GOOGLE_CLIENT_SECRET must be set for oauth2 auth"))
		}
		if c.EmailAddress == "" {
			errs = append(errs, errors.New("EMAIL_ADDRESS must be set for oauth2 auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported -smtp-auth %q", c.SMTPAuth))
	}

	if !c.Stdio && c.ListenAddr() == "" {
		errs = append(errs, errors.New("no MCP transport enabled, set -stdio or -http-addr"))
	}

	return errors.Join(errs...)
}

// ListenAddr is the HTTP listen address, if HTTP is needed at all.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr == "" && c.SMTPAuth == AuthOAuth2 {
		return "localhost:0"
	}

	return c.HTTPAddr
}

// Credentials returns the password credentials, nil when no password is set.
// OAuth2 credentials are assembled by the caller since they need a live token.
func (c *Config) Credentials() mailer.Credentials {
	if c.SMTPAuth != AuthPassword || c.EmailAppPassword == "" {
		return nil
	}

	return mailer.PlainAuth{Username: c.EmailAddress, Password: c.EmailAppPassword}
}

// MailerConfig maps the SMTP settings onto the transport config.
func (c *Config) MailerConfig(creds mailer.Credentials) mailer.Config {
	return mailer.Config{
		Host:        c.SMTPHost,
		Port:        c.SMTPPort,
		Security:    mailer.Security(c.SMTPSecurity),
		From:        c.EmailAddress,
		Credentials: creds,
	}
}

// LoadDotEnv loads the .env file named by EMAIL_MCP_ENV_FILE, or ./.env.
// Variables already present in the environment win. A missing default
// file is not an error.
func LoadDotEnv() error {
	path := os.Getenv(EnvFileVar)
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("godotenv.Load(%s) failed: %w", path, err)
	}

	log.Println("Loaded environment from", path)

	return nil
}
