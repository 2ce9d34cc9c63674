package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/mosaaedak/chatrelay/internal/api"
	"github.com/mosaaedak/chatrelay/internal/genai"
	"github.com/mosaaedak/chatrelay/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for chatrelay state data
	DefaultStateDir = "/var/lib/chatrelay"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "chatrelay.db"
	// DefaultStaticDir is the default directory for widget and dashboard files
	DefaultStaticDir = "./public"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping chatrelay with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	if err := api.Run(storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("chatrelay failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("chatrelay exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string
	StaticDir   string
	JWTSecret   string
	BaseURL     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	apiAddr   *string
	staticDir *string
	jwtSecret *string
	baseURL   *string
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("CHATRELAY_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		StaticDir:   os.Getenv("STATIC_DIR"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		BaseURL:     os.Getenv("OPENROUTER_BASE_URL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CHATRELAY_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	if config.StaticDir == "" {
		config.StaticDir = DefaultStaticDir
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CHATRELAY_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"STATIC_DIR", config.StaticDir,
		"JWT_SECRET_SET", config.JWTSecret != "",
		"OPENROUTER_BASE_URL", config.BaseURL)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for chatrelay data (overrides $CHATRELAY_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		staticDir: flag.String("static-dir", config.StaticDir, "directory with widget and dashboard files (overrides $STATIC_DIR)"),
		jwtSecret: flag.String("jwt-secret", config.JWTSecret, "admin token signing secret (overrides $JWT_SECRET)"),
		baseURL:   flag.String("completion-base-url", config.BaseURL, "chat-completion endpoint base URL (overrides $OPENROUTER_BASE_URL)"),
	}

	flag.Parse()

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	// Without a stable secret, admin tokens stop verifying across
	// restarts. Generate an ephemeral one so the service still comes up.
	if *flags.jwtSecret == "" {
		*flags.jwtSecret = randomSecret()
		slog.Warn("No JWT secret configured; generated an ephemeral one, admin sessions will not survive restarts")
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"staticDir", *flags.staticDir,
		"jwtSecret_set", *flags.jwtSecret != "",
		"baseURL", *flags.baseURL)

	return flags
}

// randomSecret returns 32 random bytes hex-encoded.
func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		slog.Error("Failed to generate random secret", "error", err)
		os.Exit(1)
	}
	return hex.EncodeToString(buf)
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs completion client configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.baseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.baseURL))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{api.WithJWTSecret(*flags.jwtSecret)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.staticDir != "" {
		apiOpts = append(apiOpts, api.WithStaticDir(*flags.staticDir))
	}
	return apiOpts
}
