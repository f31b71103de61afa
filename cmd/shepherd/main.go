package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/haventree/shepherd/internal/api"
	"github.com/haventree/shepherd/internal/assignment"
	"github.com/haventree/shepherd/internal/conversation"
	"github.com/haventree/shepherd/internal/genai"
	"github.com/haventree/shepherd/internal/lockfile"
	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/notify"
	"github.com/haventree/shepherd/internal/pipeline"
	"github.com/haventree/shepherd/internal/policy"
	"github.com/haventree/shepherd/internal/registry"
	"github.com/haventree/shepherd/internal/scheduler"
	"github.com/haventree/shepherd/internal/store"
	"github.com/haventree/shepherd/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Shepherd state data
	DefaultStateDir = "/var/lib/shepherd"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "shepherd.db"
	// DefaultSLAThreshold is how long a request may sit unassigned before its
	// priority is escalated
	DefaultSLAThreshold = 30 * time.Minute
	// SLASweepCron runs the overdue-priority sweep once a minute
	SLASweepCron = "* * * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Hold the state-dir lock for the life of the process so two instances
	// never share one SQLite file or double-deliver notifications.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state lock", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			slog.Warn("Failed to release state lock", "error", releaseErr)
		}
	}()

	slog.Info("Bootstrapping Shepherd with configured modules")
	if err := run(flags); err != nil {
		slog.Error("Shepherd failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Shepherd exited successfully")
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Warn("Failed to close store", "error", closeErr)
		}
	}()

	pol := policy.New()
	reg := registry.New(st, pol)

	notifier := buildNotifier(flags, reg)
	defer func() {
		if stopErr := notifier.Stop(); stopErr != nil {
			slog.Warn("Failed to stop notifier", "error", stopErr)
		}
	}()

	gen := buildGenerator(flags)

	engine := assignment.New(st, reg, pol, notifier)
	if err := engine.Recover(ctx); err != nil {
		return err
	}
	engine.Start(ctx)
	defer engine.Stop()

	convs := conversation.NewManager(st, engine, reg, gen, notifier)
	pipe := pipeline.New(st, reg)

	sched := scheduler.New()
	defer sched.Stop()
	slaThreshold := *flags.slaThreshold
	if err := sched.AddJob(SLASweepCron, func() {
		if sweepErr := engine.EscalateOverduePriorities(ctx, slaThreshold); sweepErr != nil {
			slog.Error("Overdue priority sweep failed", "error", sweepErr)
		}
	}); err != nil {
		return err
	}
	slog.Debug("Overdue priority sweep scheduled", "cron", SLASweepCron, "threshold", slaThreshold)

	server := api.NewServer(st, pol, reg, engine, convs, pipe)
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return server.Run(ctx, apiOpts...)
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	APIAddr      string
	SLAThreshold time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	slaThreshold *time.Duration
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("SHEPHERD_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		SLAThreshold: util.ParseDurationEnv("SLA_ESCALATE_AFTER", DefaultSLAThreshold),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SHEPHERD_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SHEPHERD_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SLA_ESCALATE_AFTER", config.SLAThreshold)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for Shepherd data (overrides $SHEPHERD_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		slaThreshold: flag.Duration("sla-escalate-after", config.SLAThreshold, "pending-request age that triggers priority escalation (overrides $SLA_ESCALATE_AFTER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"slaThreshold", *flags.slaThreshold)

	// Follow a state-dir override when the DSN was left at its derived default
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dbDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// openStore selects a backend from the DSN.
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildNotifier returns a Twilio-backed notifier when credentials are present,
// otherwise a channel notifier that exposes events in-process.
func buildNotifier(flags Flags, reg *registry.Registry) notify.Notifier {
	if os.Getenv("TWILIO_ACCOUNT_SID") == "" {
		slog.Info("Twilio credentials not configured, using in-process notification channel")
		return notify.NewChannelNotifier()
	}
	tn, err := notify.NewTwilioNotifier(notify.WithRecipientResolver(leaderPhoneResolver(reg)))
	if err != nil {
		slog.Warn("Twilio notifier unavailable, using in-process notification channel", "error", err)
		return notify.NewChannelNotifier()
	}
	slog.Info("Twilio SMS notifier configured")
	return tn
}

// leaderPhoneResolver maps notifications onto leader phone numbers. Targeted
// events reach the named leader; crisis alerts fan out to every active
// leader, available or not.
func leaderPhoneResolver(reg *registry.Registry) notify.RecipientResolver {
	return func(ctx context.Context, n models.Notification) ([]string, error) {
		if n.Type != models.NotificationCrisisAlert {
			if n.LeaderID == "" {
				return nil, nil
			}
			leader, err := reg.Get(ctx, n.LeaderID)
			if err != nil {
				return nil, err
			}
			if leader.Phone == "" {
				return nil, nil
			}
			return []string{leader.Phone}, nil
		}

		leaders, err := reg.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		var phones []string
		for _, l := range leaders {
			if l.Phone != "" {
				phones = append(phones, l.Phone)
			}
		}
		return phones, nil
	}
}

// buildGenerator constructs the assistant reply client. Conversations degrade
// to human-only replies when no API key is configured.
func buildGenerator(flags Flags) genai.ClientInterface {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	gen, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("Assistant reply client unavailable, conversations will wait for human replies", "error", err)
		return nil
	}
	return gen
}
