// Package config provides configuration management for the orchestrator.
// It supports loading configuration from environment variables, an
// optional config file, and built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the orchestrator.
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Generator    GeneratorConfig    `mapstructure:"generator"`
	Update       UpdateConfig       `mapstructure:"update"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Workspace    WorkspaceConfig    `mapstructure:"workspace"`
	Docker       DockerConfig       `mapstructure:"docker"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	StatusDump   StatusDumpConfig   `mapstructure:"statusDump"`
	Notifier     NotifierConfig     `mapstructure:"notifier"`
}

// NotifierConfig holds bot/notifier configuration. Provider "log" (the
// default) logs notifications structurally with no external delivery;
// "slack" posts to Slack via a bot token.
type NotifierConfig struct {
	Provider      string `mapstructure:"provider"`
	SlackBotToken string `mapstructure:"slackBotToken"`
	SlackChannel  string `mapstructure:"slackChannel"`
}

// APIConfig holds HTTP server and authentication configuration.
type APIConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	RequireAuth  bool   `mapstructure:"requireAuth"`
	Key          string `mapstructure:"key"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
	RateLimit    int    `mapstructure:"rateLimit"`    // requests/minute per principal
}

// GeneratorConfig holds generator-client configuration.
type GeneratorConfig struct {
	APIKey          string `mapstructure:"apiKey"`
	BaseURL         string `mapstructure:"baseUrl"`
	Model           string `mapstructure:"model"`
	RatePerMinute   int    `mapstructure:"ratePerMinute"`
	TimeoutSeconds  int    `mapstructure:"timeoutSeconds"`
	Runtime         string `mapstructure:"runtime"` // "http" or "docker"
	DockerImage     string `mapstructure:"dockerImage"`
	MaxRetries      int    `mapstructure:"maxRetries"`
	RetryBaseMillis int    `mapstructure:"retryBaseMillis"`
	RetryCapSeconds int    `mapstructure:"retryCapSeconds"`
}

// TimeoutDuration returns the per-call generator timeout.
func (g *GeneratorConfig) TimeoutDuration() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// UpdateConfig holds self-update queue and authorization configuration.
type UpdateConfig struct {
	AuthorizedPrincipals []string `mapstructure:"authorizedPrincipals"`
	MaxQueue             int      `mapstructure:"maxQueue"`
	MaxContentBytes      int      `mapstructure:"maxContentBytes"`
	RestartGraceSeconds  int      `mapstructure:"restartGraceSeconds"`
	AutoApprove          bool     `mapstructure:"autoApprove"`
	AllowedPaths         []string `mapstructure:"allowedPaths"`
	SnapshotRetentionDay int      `mapstructure:"snapshotRetentionDays"`
	PushBranch           string   `mapstructure:"pushBranch"`
	RepoPath             string   `mapstructure:"repoPath"`
	MinDiskMB            int      `mapstructure:"minDiskMb"`
	SkipTestSmoke        bool     `mapstructure:"skipTestSmoke"`
	TestSmokeCommand     string   `mapstructure:"testSmokeCommand"`
}

// OrchestratorConfig holds task-queue and scheduler configuration.
type OrchestratorConfig struct {
	MaxQueue                int `mapstructure:"maxQueue"`
	CleanupIntervalSeconds  int `mapstructure:"cleanupIntervalSeconds"`
	ResultTTLSeconds        int `mapstructure:"resultTtlSeconds"`
	DeveloperTimeoutMinutes int `mapstructure:"developerTimeoutMinutes"`
	AnalysisTimeoutMinutes  int `mapstructure:"analysisTimeoutMinutes"`
	ShutdownGraceSeconds    int `mapstructure:"shutdownGraceSeconds"`
	MaxInFlightDeveloper    int `mapstructure:"maxInFlightDeveloper"`
	MaxInFlightAnalysis     int `mapstructure:"maxInFlightAnalysis"`
}

// CleanupInterval returns the cleanup loop period as a time.Duration.
func (o *OrchestratorConfig) CleanupInterval() time.Duration {
	return time.Duration(o.CleanupIntervalSeconds) * time.Second
}

// ResultTTL returns the result retention window as a time.Duration.
func (o *OrchestratorConfig) ResultTTL() time.Duration {
	return time.Duration(o.ResultTTLSeconds) * time.Second
}

// WorkspaceConfig holds generator scratch-directory configuration.
type WorkspaceConfig struct {
	Root                 string `mapstructure:"root"`
	RetentionHours       int    `mapstructure:"retentionHours"`
	SweepIntervalMinutes int    `mapstructure:"sweepIntervalMinutes"`
}

// DockerConfig holds Docker client configuration, used only when
// generator.runtime=docker.
type DockerConfig struct {
	Host           string `mapstructure:"host"`
	APIVersion     string `mapstructure:"apiVersion"`
	DefaultNetwork string `mapstructure:"defaultNetwork"`
}

// NATSConfig holds event-bus configuration. An empty URL selects the
// in-memory fallback bus instead of a NATS connection.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// TracingConfig holds OpenTelemetry exporter configuration. Tracing is
// a no-op unless OTLPEndpoint is set.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
	ServiceName  string `mapstructure:"serviceName"`
}

// StatusDumpConfig holds the optional periodic AgentStatus dump.
type StatusDumpConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Path             string `mapstructure:"path"`
	IntervalSeconds  int    `mapstructure:"intervalSeconds"`
}

// IntervalDuration returns the dump period as a time.Duration.
func (s *StatusDumpConfig) IntervalDuration() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// detectDefaultLogFormat mirrors the environment-aware default used by
// the logger package.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("ORCHESTRA_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.requireAuth", true)
	v.SetDefault("api.key", "")
	v.SetDefault("api.readTimeout", 30)
	v.SetDefault("api.writeTimeout", 30)
	v.SetDefault("api.rateLimit", 60)

	v.SetDefault("generator.apiKey", "")
	v.SetDefault("generator.baseUrl", "")
	v.SetDefault("generator.model", "")
	v.SetDefault("generator.ratePerMinute", 50)
	v.SetDefault("generator.timeoutSeconds", 30)
	v.SetDefault("generator.runtime", "http")
	v.SetDefault("generator.dockerImage", "orchestra-generator:latest")
	v.SetDefault("generator.maxRetries", 3)
	v.SetDefault("generator.retryBaseMillis", 100)
	v.SetDefault("generator.retryCapSeconds", 30)

	v.SetDefault("update.authorizedPrincipals", []string{})
	v.SetDefault("update.maxQueue", 10)
	v.SetDefault("update.maxContentBytes", 64*1024)
	v.SetDefault("update.restartGraceSeconds", 30)
	v.SetDefault("update.autoApprove", false)
	v.SetDefault("update.allowedPaths", []string{"."})
	v.SetDefault("update.snapshotRetentionDays", 7)
	v.SetDefault("update.pushBranch", "main")
	v.SetDefault("update.repoPath", ".")
	v.SetDefault("update.minDiskMb", 100)
	v.SetDefault("update.skipTestSmoke", false)
	v.SetDefault("update.testSmokeCommand", "go test ./...")

	v.SetDefault("orchestrator.maxQueue", 100)
	v.SetDefault("orchestrator.cleanupIntervalSeconds", 300)
	v.SetDefault("orchestrator.resultTtlSeconds", 86400)
	v.SetDefault("orchestrator.developerTimeoutMinutes", 30)
	v.SetDefault("orchestrator.analysisTimeoutMinutes", 10)
	v.SetDefault("orchestrator.shutdownGraceSeconds", 30)
	v.SetDefault("orchestrator.maxInFlightDeveloper", 1)
	v.SetDefault("orchestrator.maxInFlightAnalysis", 2)

	v.SetDefault("workspace.root", "./workspaces")
	v.SetDefault("workspace.retentionHours", 24)
	v.SetDefault("workspace.sweepIntervalMinutes", 15)

	v.SetDefault("docker.host", defaultDockerHost())
	v.SetDefault("docker.apiVersion", "1.41")
	v.SetDefault("docker.defaultNetwork", "orchestra-network")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "orchestra-orchestrator")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("tracing.serviceName", "orchestra")

	v.SetDefault("statusDump.enabled", false)
	v.SetDefault("statusDump.path", "./orchestra-status.db")
	v.SetDefault("statusDump.intervalSeconds", 60)

	v.SetDefault("notifier.provider", "log")
	v.SetDefault("notifier.slackBotToken", "")
	v.SetDefault("notifier.slackChannel", "")
}

func defaultDockerHost() string {
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return host
	}
	return "unix:///var/run/docker.sock"
}

// Load reads configuration from environment variables, an optional
// config file, and defaults. Environment variables use the prefix
// ORCHESTRA_ and the upper-cased key with dots replaced by underscores;
// camelCase key segments get no extra separator (api.requireAuth is
// ORCHESTRA_API_REQUIREAUTH). ORCHESTRA_GENERATOR_API_KEY,
// ORCHESTRA_API_KEY and ORCHESTRA_LOG_LEVEL are bound explicitly.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default
// locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ORCHESTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("generator.apiKey", "ORCHESTRA_GENERATOR_API_KEY")
	_ = v.BindEnv("api.key", "ORCHESTRA_API_KEY")
	_ = v.BindEnv("logging.level", "ORCHESTRA_LOG_LEVEL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/orchestra/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that configuration values are within acceptable
// ranges and enforces the few fields that have no safe default.
func validate(cfg *Config) error {
	var errs []string

	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if cfg.API.RequireAuth && cfg.API.Key == "" {
		errs = append(errs, "api.key is required when api.requireAuth is true")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Generator.Runtime != "http" && cfg.Generator.Runtime != "docker" {
		errs = append(errs, "generator.runtime must be one of: http, docker")
	}
	if cfg.Generator.RatePerMinute <= 0 {
		errs = append(errs, "generator.ratePerMinute must be positive")
	}

	if cfg.Orchestrator.MaxQueue <= 0 {
		errs = append(errs, "orchestrator.maxQueue must be positive")
	}
	if cfg.Update.MaxQueue <= 0 {
		errs = append(errs, "update.maxQueue must be positive")
	}

	if cfg.Notifier.Provider != "log" && cfg.Notifier.Provider != "slack" {
		errs = append(errs, "notifier.provider must be one of: log, slack")
	}
	if cfg.Notifier.Provider == "slack" && cfg.Notifier.SlackBotToken == "" {
		errs = append(errs, "notifier.slackBotToken is required when notifier.provider is slack")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
