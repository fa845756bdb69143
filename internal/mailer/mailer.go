// Package mailer composes MIME messages and delivers them over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
)

// DefaultFrom is the sender identity used when no address is configured.
const DefaultFrom = `"AI Employee" <ai.employee@example.com>`

// Security selects how the SMTP connection is protected.
type Security string

const (
	// SecurityStartTLS upgrades a plain connection with STARTTLS.
	SecurityStartTLS Security = "starttls"
	// SecurityTLS uses implicit TLS from the first byte (usually port 465).
	SecurityTLS Security = "tls"
	// SecurityNone sends everything in clear text.
	SecurityNone Security = "none"
)

// Status is the outcome of the startup connectivity check.
type Status int32

const (
	StatusUnverified Status = iota
	StatusVerified
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusFailed:
		return "failed"
	default:
		return "unverified"
	}
}

// Config holds the transport settings fixed at construction.
type Config struct {
	Host     string
	Port     int
	Security Security
	// From is the sender identity, DefaultFrom when empty.
	From string
	// Credentials is optional; without it no AUTH command is issued.
	Credentials Credentials
	// TLSConfig overrides the default TLS client config.
	TLSConfig *tls.Config
}

// Mailer sends messages through a single SMTP relay.
// It is safe for concurrent use.
type Mailer struct {
	addr   string
	sec    Security
	from   *mail.Address
	creds  Credentials
	tlsCfg *tls.Config
	status atomic.Int32
}

// New creates a Mailer. It fails only when the sender cannot be parsed.
func New(cfg Config) (*Mailer, error) {
	from := cfg.From
	if from == "" {
		from = DefaultFrom
	}

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("mail.ParseAddress(%q) failed: %w", from, err)
	}

	sec := cfg.Security
	if sec == "" {
		sec = SecurityStartTLS
	}

	tlsCfg := cfg.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}

	return &Mailer{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		sec:    sec,
		from:   fromAddr,
		creds:  cfg.Credentials,
		tlsCfg: tlsCfg,
	}, nil
}

// From returns the sender identity every message is sent with.
func (m *Mailer) From() string {
	return m.from.String()
}

// Status reports the result of the last Verify call.
func (m *Mailer) Status() Status {
	return Status(m.status.Load())
}

// Send delivers msg with a single attempt and returns its Message-Id.
func (m *Mailer) Send(ctx context.Context, msg Message) (string, error) {
	composed, err := m.Compose(msg)
	if err != nil {
		return "", fmt.Errorf("compose failed: %w", err)
	}

	c, release, err := m.open(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if err := c.SendMail(m.from.Address, composed.Recipients, composed.Reader()); err != nil {
		return "", fmt.Errorf("smtp.SendMail failed: %w", err)
	}

	if err := c.Quit(); err != nil {
		log.Println(fmt.Errorf("smtp.Quit failed: %w", err))
	}

	return composed.MessageID, nil
}

// Verify checks that the relay accepts a connection and the configured
// credentials. The outcome is recorded and returned; Send never consults it.
func (m *Mailer) Verify(ctx context.Context) error {
	err := m.verify(ctx)
	if err != nil {
		m.status.Store(int32(StatusFailed))
		return err
	}

	m.status.Store(int32(StatusVerified))

	return nil
}

func (m *Mailer) verify(ctx context.Context) error {
	c, release, err := m.open(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp.Noop failed: %w", err)
	}

	if err := c.Quit(); err != nil {
		return fmt.Errorf("smtp.Quit failed: %w", err)
	}

	return nil
}

// open dials the relay, secures the connection and authenticates.
// The returned release func closes the client and detaches it from ctx.
func (m *Mailer) open(ctx context.Context) (*smtp.Client, func(), error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s failed: %w", m.addr, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	c, err := m.newClient(conn)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, nil, err
	}

	release := func() {
		stop()
		_ = c.Close()
	}

	if m.creds != nil {
		saslClient, err := m.creds.SASLClient(ctx)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("creds.SASLClient failed: %w", err)
		}

		if err := c.Auth(saslClient); err != nil {
			release()
			return nil, nil, fmt.Errorf("smtp.Auth failed: %w", err)
		}
	}

	return c, release, nil
}

func (m *Mailer) newClient(conn net.Conn) (*smtp.Client, error) {
	switch m.sec {
	case SecurityTLS:
		return smtp.NewClient(tls.Client(conn, m.tlsCfg)), nil
	case SecurityNone:
		return smtp.NewClient(conn), nil
	case SecurityStartTLS:
		c, err := smtp.NewClientStartTLS(conn, m.tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("smtp.NewClientStartTLS failed: %w", err)
		}
		return c, nil
	default:
		return nil, errors.New("unsupported smtp security mode: " + string(m.sec))
	}
}
