// Package cli implements vaictl, the command line client for vaihub.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yoockh/vaihub/internal/apiclient"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/providers/authn"
	"github.com/yoockh/vaihub/internal/session"
)

type settings struct {
	ServerURL   string        `env:"VAIHUB_URL" envDefault:"http://localhost:8080"`
	SupabaseURL string        `env:"SUPABASE_URL"`
	AnonKey     string        `env:"SUPABASE_ANON_KEY"`
	SessionFile string        `env:"VAIHUB_SESSION_FILE"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"warn"`
	Timeout     time.Duration `env:"VAIHUB_TIMEOUT" envDefault:"30s"`
}

// app is the state shared by every command of one vaictl run.
type app struct {
	settings settings
	log      *logrus.Logger
	auth     *authn.Client
	api      *apiclient.Client
	store    *sessionStore
	unlisten func()
}

// NewRootCmd builds the vaictl command tree. Flag defaults come from the
// environment.
func NewRootCmd() *cobra.Command {
	a := &app{}
	_ = env.Parse(&a.settings)

	root := &cobra.Command{
		Use:   "vaictl",
		Short: "vaictl talks to a vaihub server as a signed-in user",
		Long:  `vaictl signs in against the auth server, keeps the session on disk and calls the vaihub API: profile role, admin actions and the AI assistant.`,
		Example: `vaictl login --email ana@example.com
  vaictl whoami
  vaictl admin set-role 0b6f5d0e-8f57-4a8e-9d11-6a3f0c2f4a10 premium
  vaictl ask "How do I write a VA cover letter?"`,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.unlisten != nil {
				a.unlisten()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.settings.ServerURL, "server", a.settings.ServerURL, "vaihub server URL")
	f.StringVar(&a.settings.SupabaseURL, "supabase-url", a.settings.SupabaseURL, "Auth project URL")
	f.StringVar(&a.settings.AnonKey, "anon-key", a.settings.AnonKey, "Auth project anon key")
	f.StringVar(&a.settings.SessionFile, "session-file", a.settings.SessionFile, "Where the session is stored (default: user config dir)")
	f.StringVar(&a.settings.LogLevel, "log-level", a.settings.LogLevel, "Log level (debug, info, warn, error)")
	f.DurationVar(&a.settings.Timeout, "timeout", a.settings.Timeout, "How long to wait for the session to resolve")

	root.AddCommand(
		a.loginCmd(),
		a.signupCmd(),
		a.logoutCmd(),
		a.resetPasswordCmd(),
		a.whoamiCmd(),
		a.adminCmd(),
		a.askCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) setup(stderr io.Writer) error {
	if a.settings.SupabaseURL == "" {
		return errors.New("auth project URL is not set (--supabase-url or SUPABASE_URL)")
	}
	a.log = logger.NewWithOutput(stderr, a.settings.LogLevel)

	path := a.settings.SessionFile
	if path == "" {
		path = defaultSessionPath()
	}
	a.store = &sessionStore{path: path}

	a.auth = authn.New(a.settings.SupabaseURL, a.settings.AnonKey)
	sess, err := a.store.Load()
	if err != nil {
		a.log.WithError(err).Warn("ignoring stored session")
	}
	a.auth.Restore(sess)
	a.api = apiclient.New(a.settings.ServerURL, a.auth)

	// persist every change after the initial one
	a.unlisten = a.auth.OnAuthStateChange(func(ev models.AuthEvent) {
		if ev.Kind == models.AuthInitialSession {
			return
		}
		if err := a.store.Save(ev.Session); err != nil {
			a.log.WithError(err).Error("failed to store session")
		}
	})
	return nil
}

// resolve runs the session machine until it leaves Loading. The caller must
// Stop the returned machine.
func (a *app) resolve(ctx context.Context) (*session.Machine, session.Snapshot, error) {
	m := session.New(a.auth, a.api, a.auth, session.WithLogger(a.log))

	settled := make(chan session.Snapshot, 1)
	cancel := m.Subscribe(func(s session.Snapshot) {
		if s.State == session.Loading {
			return
		}
		select {
		case settled <- s:
		default:
		}
	})
	defer cancel()

	if err := m.Start(ctx); err != nil {
		return nil, session.Snapshot{}, err
	}

	timer := time.NewTimer(a.settings.Timeout)
	defer timer.Stop()
	select {
	case s := <-settled:
		return m, s, nil
	case <-timer.C:
		m.Stop()
		return nil, session.Snapshot{}, fmt.Errorf("session did not resolve within %s", a.settings.Timeout)
	case <-ctx.Done():
		m.Stop()
		return nil, session.Snapshot{}, ctx.Err()
	}
}

func readLine(r io.Reader) string {
	line, _ := bufio.NewReader(r).ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}
