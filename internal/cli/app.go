// Package cli implements the terminal planning wizard: a REPL over the
// session engine, the identity gateway and the profile manager, with chat
// turns rendered per message content variant.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/backend"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/config"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
	fsstore "github.com/kzxian1201/medical-tourism-planning-system/internal/docstore/firestore"
	pgstore "github.com/kzxian1201/medical-tourism-planning-system/internal/docstore/postgres"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/identity"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/localstate"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/photostore"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/profile"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/session"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// authGateway is the slice of the identity gateway the CLI drives.
// *identity.Gateway satisfies it; tests provide a fake.
type authGateway interface {
	SignIn(ctx context.Context, email, password string) error
	Register(ctx context.Context, email, password string) error
	SendPasswordReset(ctx context.Context, email string) error
	Reauthenticate(ctx context.Context, password string) error
	SignInWithRefreshToken(ctx context.Context, refreshToken string) error
	DeleteAccount(ctx context.Context) error
	SignOut()
	UserID() string
	Email() string
	RefreshToken() string
	SignedIn() bool
}

// healthChecker probes the planning backend's reachability.
type healthChecker interface {
	Health(ctx context.Context) error
}

// App wires the planner's components behind the REPL commands.
type App struct {
	cfg      *config.Config
	log      logging.Logger
	auth     authGateway
	engine   *session.Engine
	docs     docstore.Store
	profiles *profile.Manager
	photos   *photostore.Store
	local    *localstate.Gateway
	health   healthChecker
	reader   *bufio.Reader
	out      io.Writer

	mu   sync.Mutex
	mode Mode
}

// NewApp builds the full application from cfg. Every external handle is
// constructed exactly once here and shared by reference for the process
// lifetime.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Discard()
	}

	local := localstate.New(ctx, cfg.LocalDBPath, log)

	docs, err := openDocstore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	planner := backend.New(cfg.PlannerEndpoint, cfg.HTTPTimeout, log)

	auth := identity.NewGateway(identity.Config{
		APIKey:   cfg.IdentityAPIKey,
		BaseURL:  cfg.IdentityBaseURL,
		TokenURL: cfg.IdentityTokenURL,
		Logger:   log,
	})

	engine := session.NewEngine(session.Config{
		Docs:      docs,
		Planner:   planner,
		Pointers:  local,
		SaveDelay: cfg.SaveDelay,
		Logger:    log,
	})

	photos := photostore.New(photostore.Config{
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		BaseEndpoint: cfg.S3BaseEndpoint,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
	}, log)

	return &App{
		cfg:      cfg,
		log:      log,
		auth:     auth,
		engine:   engine,
		docs:     docs,
		profiles: profile.NewManager(docs, nil, log),
		photos:   photos,
		local:    local,
		health:   planner,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		mode:     ModeOffline,
	}, nil
}

func openDocstore(ctx context.Context, cfg *config.Config, log logging.Logger) (docstore.Store, error) {
	switch cfg.DocstoreBackend {
	case "memory":
		return docstore.NewMemory(), nil
	case "firestore":
		return fsstore.NewStore(ctx, cfg.FirestoreProject, cfg.AppID, log)
	case "postgres":
		return pgstore.NewStore(ctx, cfg.PostgresDSN, cfg.AppID, log)
	default:
		return nil, fmt.Errorf("unknown docstore backend %q", cfg.DocstoreBackend)
	}
}

// Run drives the REPL until EOF or exit.
func (a *App) Run(ctx context.Context) {
	defer a.engine.Close()
	defer func() { _ = a.docs.Close() }()
	defer func() { _ = a.local.Close() }()

	a.engine.SetOnRemote(func(s *session.Session) {
		fmt.Fprintf(a.out, "\n(plan updated remotely: %s)\n", session.StageTitle(s.CurrentStage))
	})

	go a.StartOnlineStatusWatcher(ctx, a.cfg.OnlineCheckInterval)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

func (a *App) isLoggedIn() bool {
	return a.auth.SignedIn()
}

func (a *App) status() string {
	who := "guest"
	if email := a.auth.Email(); email != "" {
		who = email
	}
	return fmt.Sprintf("%s, %s", who, a.Mode())
}

// Mode returns the last observed backend reachability.
func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()
	if changed {
		fmt.Fprintf(a.out, "\n(planning service is %s)\n", mode)
	}
}

// StartOnlineStatusWatcher probes the planning backend's health endpoint
// on a fixed interval and flips the prompt's online/offline marker.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := a.health.Health(probeCtx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}

// printErr shows a failure to the user without leaking stack-level detail.
func (a *App) printErr(err error) {
	fmt.Fprintf(a.out, "Error: %s\n", err.Error())
}
