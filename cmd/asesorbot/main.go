package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inmolabs/asesorbot/internal/api"
	"github.com/inmolabs/asesorbot/internal/conversation"
	"github.com/inmolabs/asesorbot/internal/genai"
	"github.com/inmolabs/asesorbot/internal/lockfile"
	"github.com/inmolabs/asesorbot/internal/store"
	"github.com/inmolabs/asesorbot/internal/util"
	"github.com/inmolabs/asesorbot/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for asesorbot state data
	DefaultStateDir = "/var/lib/asesorbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "asesorbot.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Only one instance may use a state directory: a second process sharing the
	// whatsmeow session database would corrupt the WhatsApp session.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	orchOpts := buildOrchestratorOptions(config)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping asesorbot with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "genai", len(genaiOpts), "orchestrator", len(orchOpts), "api", len(apiOpts))
	if err := api.Run(waOpts, genaiOpts, orchOpts, apiOpts); err != nil {
		slog.Error("asesorbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("asesorbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	WhatsAppDSN     string
	StateDir        string
	OpenAIKey       string
	OpenAIModel     string
	APIAddr         string
	Backend         string
	HistoryPairs    int
	IdleTimeout     time.Duration
	StaticBlacklist []string
	AdminNumbers    []string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	whatsappDSN *string
	openaiKey   *string
	openaiModel *string
	apiAddr     *string
	backend     *string
}

// initializeLogger sets up structured logging. LOG_LEVEL=debug enables debug output.
func initializeLogger() {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:        os.Getenv("ASESORBOT_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		APIAddr:         os.Getenv("API_ADDR"),
		Backend:         os.Getenv("MESSAGING_BACKEND"),
		HistoryPairs:    util.ParseIntEnv("HISTORY_PAIRS", conversation.DefaultHistoryPairs),
		IdleTimeout:     util.ParseDurationEnv("IDLE_TIMEOUT", conversation.DefaultIdleTimeout),
		StaticBlacklist: util.ParseListEnv("BLACKLISTED_NUMBERS"),
		AdminNumbers:    util.ParseListEnv("ADMIN_NUMBERS"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ASESORBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// The app store and the whatsmeow session each get their own SQLite file
	// under the state directory unless DSNs are provided.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		if store.DetectDSNType(config.DatabaseURL) == "postgres" {
			config.WhatsAppDSN = config.DatabaseURL
			slog.Debug("Using DATABASE_URL for whatsmeow session store")
		} else {
			config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
			slog.Debug("No WHATSAPP_DB_DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
		}
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"ASESORBOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend,
		"HISTORY_PAIRS", config.HistoryPairs,
		"IDLE_TIMEOUT", config.IdleTimeout,
		"BLACKLISTED_NUMBERS_COUNT", len(config.StaticBlacklist),
		"ADMIN_NUMBERS_COUNT", len(config.AdminNumbers))

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for asesorbot data (overrides $ASESORBOT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the application store (overrides $DATABASE_URL)"),
		whatsappDSN: flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backend:     flag.String("messaging-backend", config.Backend, "messaging backend: whatsmeow or twilio (overrides $MESSAGING_BACKEND)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"whatsappDSN_set", *flags.whatsappDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"backend", *flags.backend)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.whatsappDSN} {
		if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
			continue
		}
		stateDir := filepath.Dir(dsn)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	return waOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildOrchestratorOptions constructs conversation orchestrator options
func buildOrchestratorOptions(config Config) []conversation.Option {
	var orchOpts []conversation.Option
	if config.HistoryPairs > 0 {
		orchOpts = append(orchOpts, conversation.WithHistoryPairs(config.HistoryPairs))
	}
	if config.IdleTimeout > 0 {
		orchOpts = append(orchOpts, conversation.WithIdleTimeout(config.IdleTimeout))
	}
	if len(config.StaticBlacklist) > 0 {
		orchOpts = append(orchOpts, conversation.WithStaticBlacklist(config.StaticBlacklist))
	}
	if len(config.AdminNumbers) > 0 {
		orchOpts = append(orchOpts, conversation.WithAdminNumbers(config.AdminNumbers))
	}
	return orchOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.backend != "" {
		apiOpts = append(apiOpts, api.WithMessagingBackend(*flags.backend))
	}
	if *flags.dbDSN != "" {
		apiOpts = append(apiOpts, api.WithStoreDSN(*flags.dbDSN))
	}
	return apiOpts
}
