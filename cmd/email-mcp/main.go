// Email MCP server lets AI agents send email over SMTP through Model Context Protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/email-mcp/internal/auth"
	"github.com/hal9000y/email-mcp/internal/config"
	"github.com/hal9000y/email-mcp/internal/mailer"
	"github.com/hal9000y/email-mcp/internal/tool"
)

const (
	verifyTimeout   = 30 * time.Second
	shutdownTimeout = 3 * time.Second
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	root := config.NewCommand(
		config.Command{
			Name:       "email-mcp",
			ShortUsage: "email-mcp [flags] [verify]",
			ShortHelp:  "Serve the email tools over MCP",
			LongHelp: `Serve send-email, list-emails and get-unread-emails over MCP.

Every flag can be set through the environment, e.g. -smtp-host via SMTP_HOST.
A .env file is loaded first, from EMAIL_MCP_ENV_FILE or the working directory.
Flags go before the subcommand: email-mcp -smtp-host smtp.example.com verify`,
			Exec: func(_ context.Context, cfg *config.Config) error {
				run(cfg)
				return nil
			},
		},
		config.Command{
			Name:       "verify",
			ShortUsage: "email-mcp [flags] verify",
			ShortHelp:  "Check the SMTP relay connection and credentials, then exit",
			Exec:       runVerify,
		},
	)

	if err := root.ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) {
	persistLogs := setupLogger(cfg.Stdio, cfg.LogFile)
	defer persistLogs()

	mux := http.NewServeMux()

	var ln net.Listener
	if addr := cfg.ListenAddr(); addr != "" {
		ln = mustListen(addr)
	}

	creds, tok := mustCredentials(cfg, ln)
	if tok != nil {
		defer func() {
			log.Println("Persisting token if exists")
			if err := tok.Persist(); err != nil {
				log.Println(fmt.Errorf("tok.Persist failed: %w", err))
			}
		}()
		mux.Handle("/oauth", auth.NewHTTPHandler(tok))
	}

	m, err := mailer.New(cfg.MailerConfig(creds))
	if err != nil {
		panic(fmt.Errorf("mailer.New failed: %w", err))
	}
	log.Println("Sending as", m.From(), "via", cfg.SMTPHost)

	// The check only reports; sends are attempted regardless of its outcome.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		defer cancel()

		if err := m.Verify(ctx); err != nil {
			log.Println(fmt.Errorf("SMTP verification failed: %w", err))
			return
		}
		log.Println("SMTP connection verified")
	}()

	emailT := tool.NewServer(m)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	var errHTTPCh <-chan error
	if ln != nil {
		mcpHTTP := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return emailT }, nil)
		mux.Handle("/mcp", mcpHTTP)

		var stopHTTP func()
		stopHTTP, errHTTPCh = serve(httpTransport(&http.Server{Handler: mux}, ln))
		defer stopHTTP()
	}

	var errStdioCh <-chan error
	if cfg.Stdio {
		var stopStdio func()
		stopStdio, errStdioCh = serve(stdioTransport(emailT))
		defer stopStdio()
	}

	select {
	case err := <-errHTTPCh:
		log.Println("Error http server", err)
	case err := <-errStdioCh:
		log.Println("Error stdio", err)
	case <-shutdown:
		log.Println("Shutdown signal received")
	}
}

func runVerify(ctx context.Context, cfg *config.Config) error {
	creds := cfg.Credentials()
	if cfg.SMTPAuth == config.AuthOAuth2 {
		tok, err := auth.NewToken(auth.NewGoogleConfig(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthURL), cfg.OAuthTokenFile)
		if err != nil {
			return fmt.Errorf("auth.NewToken failed: %w", err)
		}
		defer func() {
			if err := tok.Persist(); err != nil {
				log.Println(fmt.Errorf("tok.Persist failed: %w", err))
			}
		}()
		creds = oauthCredentials(cfg, tok)
	}

	m, err := mailer.New(cfg.MailerConfig(creds))
	if err != nil {
		return fmt.Errorf("mailer.New failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	if err := m.Verify(ctx); err != nil {
		return err
	}

	fmt.Printf("SMTP connection to %s:%d verified, sending as %s\n", cfg.SMTPHost, cfg.SMTPPort, m.From())

	return nil
}

// mustCredentials returns the SMTP credentials, plus the OAuth token when
// the relay is authenticated with oauth2.
func mustCredentials(cfg *config.Config, ln net.Listener) (mailer.Credentials, *auth.Token) {
	if cfg.SMTPAuth != config.AuthOAuth2 {
		creds := cfg.Credentials()
		if creds == nil {
			log.Println("EMAIL_APP_PASSWORD is not set, sends will be attempted without authentication")
		}
		return creds, nil
	}

	oauthURL := cfg.OAuthURL
	if oauthURL == "" {
		oauthURL = fmt.Sprintf("http://%s/oauth", ln.Addr().String())
	}

	tok, err := auth.NewToken(auth.NewGoogleConfig(cfg.OAuthClientID, cfg.OAuthClientSecret, oauthURL), cfg.OAuthTokenFile)
	if err != nil {
		panic(fmt.Errorf("auth.NewToken failed: %w", err))
	}

	if _, err := tok.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
		openBrowser(oauthURL)
	}

	return oauthCredentials(cfg, tok), tok
}

func oauthCredentials(cfg *config.Config, tok *auth.Token) mailer.Credentials {
	return mailer.OAuthBearer{
		Username: cfg.EmailAddress,
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Tokens:   tok,
	}
}

// transport exposes the MCP server one way. run blocks until ctx is
// canceled or stop makes it return.
type transport struct {
	name string
	run  func(ctx context.Context) error
	stop func(ctx context.Context) error
}

func stdioTransport(srv *mcp.Server) transport {
	return transport{
		name: "stdio transport",
		run: func(ctx context.Context) error {
			err := srv.Run(ctx, &mcp.StdioTransport{})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("srv.Run failed: %w", err)
			}
			return nil
		},
	}
}

func httpTransport(srv *http.Server, ln net.Listener) transport {
	return transport{
		name: "http server on " + ln.Addr().String(),
		run: func(context.Context) error {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("srv.Serve failed: %w", err)
			}
			return nil
		},
		stop: srv.Shutdown,
	}
}

// serve starts t in the background. The returned func stops it and waits;
// the channel yields the error t failed with, if any.
func serve(t transport) (func(), <-chan error) {
	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(errCh)
		log.Println("Starting", t.name)

		if err := t.run(ctx); err != nil {
			log.Println(err)
			errCh <- err
		}
	}()

	return func() {
		if t.stop != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := t.stop(stopCtx); err != nil {
				log.Println(fmt.Errorf("%s: stop failed: %w", t.name, err))
			}
		}
		cancel()

		<-errCh
		log.Println("Stopped", t.name)
	}, errCh
}

func mustListen(httpAddr string) net.Listener {
	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		panic(fmt.Errorf("net.Listen failed: %w", err))
	}

	return ln
}

// setupLogger keeps stdout free for the stdio transport.
func setupLogger(enableStdio bool, logFile string) func() {
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open log file: %w", err))
		}
		log.SetOutput(f)

		return func() {
			if err := f.Close(); err != nil {
				log.Println(fmt.Errorf("f.Close failed: %w", err))
			}
		}
	}

	if enableStdio {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(os.Stdout)
	}

	return func() {}
}

func openBrowser(url string) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		log.Printf("Could not open browser automatically: %v; please copy and open link in the browser: %s\n", err, url)
	}
}
