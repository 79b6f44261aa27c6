package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vsa/internal/repositories"
	"github.com/desertthunder/vsa/internal/services"
	"github.com/desertthunder/vsa/internal/session"
	"github.com/desertthunder/vsa/internal/shared"
	"github.com/desertthunder/vsa/internal/socket"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	api        *services.APIService
	httpClient *http.Client
	dialer     socket.Dialer
	db         *sql.DB
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	API        *services.APIService
	HTTPClient *http.Client
	Dialer     socket.Dialer
	DB         *sql.DB
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Dialer == nil {
		opts.Dialer = socket.WebSocketDialer{}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		api:        opts.API,
		httpClient: opts.HTTPClient,
		dialer:     opts.Dialer,
		db:         opts.DB,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger swaps the logger, e.g. to a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, analysesCommand, analyzeCommand, benchCommand, apiCommand, statusCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before resolves the credential once per invocation and binds it to the command context.
//
// A missing token is not an error here; commands that need one fail through [Runner.credential].
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" && path != r.configPath {
		if _, err := os.Stat(path); err == nil {
			config, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			r.config, r.configPath = config, path
		}
	}

	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	token := strings.TrimSpace(cmd.String("token"))
	if token == "" {
		resolved, err := r.config.ResolveToken()
		if err != nil {
			return ctx, err
		}
		token = resolved
	}
	if token == "" {
		return ctx, nil
	}

	return shared.WithCredential(ctx, shared.NewCredential(token, time.Time{})), nil
}

// credential returns the bound credential, or an [shared.ErrAuth] error when none is usable.
func (r *Runner) credential(ctx context.Context) (shared.Credential, error) {
	cred, _ := shared.CredentialFrom(ctx)
	if err := cred.Check(); err != nil {
		return cred, fmt.Errorf("%w (set %s or credentials.token)", err, shared.TokenEnv)
	}
	return cred, nil
}

// apiService returns the injected REST client or builds one that authorizes with the bound credential.
func (r *Runner) apiService(ctx context.Context) *services.APIService {
	if r.api != nil {
		return r.api
	}

	client := r.httpClient
	if cred, ok := shared.CredentialFrom(ctx); ok && cred.Valid() {
		client = services.NewAuthorizedClient(ctx, cred, r.httpClient)
	}
	r.api = services.NewAPIService(r.config.Backend.URL, client)
	return r.api
}

// database opens the configured database on first use.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

// details returns the detail cache, or nil when the database cannot be opened. The cache is optional for live
// sessions, so failures are only logged.
func (r *Runner) details() *repositories.DetailRepository {
	db, err := r.database()
	if err != nil {
		r.logger.Warn("detail cache unavailable", "error", err)
		return nil
	}
	return repositories.NewDetailRepository(db)
}

// newSession builds a session over a fresh channel to the configured backend.
func (r *Runner) newSession(model string, store *repositories.DetailRepository) (*session.Session, error) {
	endpoint, err := socket.EndpointURL(r.config.Backend.URL, r.config.Backend.SocketPath)
	if err != nil {
		return nil, err
	}

	policy := socket.DefaultReconnectPolicy()
	if r.config.Session.ReconnectIntervalMS > 0 {
		policy.Interval = r.config.Session.ReconnectInterval()
	}
	if r.config.Session.ReconnectAttempts > 0 {
		policy.MaxAttempts = r.config.Session.ReconnectAttempts
	}

	channel := socket.New(socket.Options{
		URL:            endpoint,
		Dialer:         r.dialer,
		ConnectTimeout: r.config.Session.ConnectTimeout(),
		Policy:         policy,
		Logger:         shared.WithLogger(r.logger, "component", "socket"),
	})

	if model == "" {
		model = r.config.Session.Model
	}

	opts := session.Options{Model: model, Logger: shared.WithLogger(r.logger, "component", "session")}
	// A nil *DetailRepository must not become a non-nil interface.
	if store != nil {
		opts.Store = store
	}
	return session.New(channel, opts), nil
}

// close releases resources opened lazily by commands.
func (r *Runner) close() {
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
