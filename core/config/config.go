package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"basegraph.app/scribe/core/db"
)

type Config struct {
	Chat        ChatConfig
	ResearchLLM LLMConfig
	WriterLLM   LLMConfig
	EditorLLM   LLMConfig
	CleanerLLM  LLMConfig
	Search      SearchConfig
	Pipeline    PipelineConfig
	Report      ReportConfig
	OTel        OTelConfig
	Env         string
	Port        string
	DB          db.Config
}

// ChatConfig names the participants and bounds the conversation.
type ChatConfig struct {
	ResearcherName      string
	WriterName          string
	EditorName          string
	CleanerName         string
	MaxConsecutiveTurns int
	MaxIterations       int
	ReviewTurnCap       int
	ParticipantTimeout  time.Duration
	MaxToolRounds       int
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type LLMConfig struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	BaseURL   string // Optional: for custom endpoints (Azure OpenAI, proxies)
	Model     string
	MaxTokens int
}

// SearchConfig points the researcher's web_search tool at a Typesense collection.
type SearchConfig struct {
	URL             string
	APIKey          string
	Collection      string
	ResultsPerQuery int
	MaxParallel     int
}

type PipelineConfig struct {
	RedisURL     string
	StreamPrefix string
	StreamTTL    time.Duration
}

type ReportConfig struct {
	OutputDir         string
	PDF               bool
	QueryLinkTemplate string // fmt template receiving the escaped query
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeCLI    ServiceType = "reportgen"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.reportgen for the command line generator
//
// Falls back to .env if service-specific file doesn't exist.
// Per-role LLM settings fall back to the shared LLM_* variables.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("SCRIBE_ENV", "development") == "development" {
		// Try service-specific env file first, fall back to .env
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("SCRIBE_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		Chat: ChatConfig{
			ResearcherName:      getEnv("RESEARCHER_NAME", "FinancialResearcher"),
			WriterName:          getEnv("WRITER_NAME", "FinancialReportWriter"),
			EditorName:          getEnv("EDITOR_NAME", "FinancialReportEditor"),
			CleanerName:         getEnv("CLEANER_NAME", "FinalReportCleaner"),
			MaxConsecutiveTurns: getEnvInt("MAX_CONSECUTIVE_TURNS", 5),
			MaxIterations:       getEnvInt("MAX_ITERATIONS", 20),
			ReviewTurnCap:       getEnvInt("REVIEW_TURN_CAP", 2),
			ParticipantTimeout:  getEnvDuration("PARTICIPANT_TIMEOUT", 3*time.Minute),
			MaxToolRounds:       getEnvInt("MAX_TOOL_ROUNDS", 4),
		},
		ResearchLLM: loadLLMConfig("RESEARCHER"),
		WriterLLM:   loadLLMConfig("WRITER"),
		EditorLLM:   loadLLMConfig("EDITOR"),
		CleanerLLM:  loadLLMConfig("CLEANER"),
		Search: SearchConfig{
			URL:             getEnv("TYPESENSE_URL", ""),
			APIKey:          getEnv("TYPESENSE_API_KEY", ""),
			Collection:      getEnv("TYPESENSE_COLLECTION", "financial_documents"),
			ResultsPerQuery: getEnvInt("SEARCH_RESULTS_PER_QUERY", 5),
			MaxParallel:     getEnvInt("SEARCH_MAX_PARALLEL", 4),
		},
		Pipeline: PipelineConfig{
			RedisURL:     getEnv("REDIS_URL", ""),
			StreamPrefix: getEnv("REDIS_STREAM_PREFIX", "report-run"),
			StreamTTL:    getEnvDuration("REDIS_STREAM_TTL", 24*time.Hour),
		},
		Report: ReportConfig{
			OutputDir:         getEnv("REPORT_OUTPUT_DIR", "reports"),
			PDF:               getEnvBool("REPORT_PDF", false),
			QueryLinkTemplate: getEnv("REPORT_QUERY_LINK_TEMPLATE", "https://www.bing.com/search?q=%s"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "scribe"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings every entry point needs: three enabled
// participant models and three distinct role names.
func (c Config) Validate() error {
	if !c.ResearchLLM.Enabled() {
		return fmt.Errorf("RESEARCHER_LLM_API_KEY (or LLM_API_KEY) is required")
	}
	if !c.WriterLLM.Enabled() {
		return fmt.Errorf("WRITER_LLM_API_KEY (or LLM_API_KEY) is required")
	}
	if !c.EditorLLM.Enabled() {
		return fmt.Errorf("EDITOR_LLM_API_KEY (or LLM_API_KEY) is required")
	}
	return c.Chat.Validate()
}

func (c ChatConfig) Validate() error {
	names := []string{c.ResearcherName, c.WriterName, c.EditorName}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return errors.New("participant names must not be empty")
		}
		if seen[n] {
			return fmt.Errorf("participant name %q is used by more than one role", n)
		}
		seen[n] = true
	}
	if c.MaxIterations <= 0 {
		return errors.New("MAX_ITERATIONS must be positive")
	}
	if c.MaxConsecutiveTurns <= 0 || c.ReviewTurnCap <= 0 {
		return errors.New("turn caps must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c SearchConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != ""
}

func (c PipelineConfig) Enabled() bool {
	return c.RedisURL != ""
}

func loadLLMConfig(role string) LLMConfig {
	return LLMConfig{
		Provider:  getEnv(role+"_LLM_PROVIDER", getEnv("LLM_PROVIDER", "openai")),
		APIKey:    getEnv(role+"_LLM_API_KEY", getEnv("LLM_API_KEY", "")),
		BaseURL:   getEnv(role+"_LLM_BASE_URL", getEnv("LLM_BASE_URL", "")),
		Model:     getEnv(role+"_LLM_MODEL", getEnv("LLM_MODEL", "")),
		MaxTokens: getEnvInt(role+"_LLM_MAX_TOKENS", getEnvInt("LLM_MAX_TOKENS", 8192)),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
