package config

import (
	"os"
	"strconv"
	"strings"
)

// Env holds settings read from STREAKLINE_* environment variables. Unset
// variables leave the file configuration untouched.
type Env struct {
	ConfigPath     string
	Port           int
	Bind           string
	LogLevel       string
	StorageDriver  string
	DatabaseURL    string
	CurriculumPath string
	XPPolicy       string
	CascadeMode    string
	AMQPURL        string
	LLMProvider    string
	LLMModel       string
	LLMBaseURL     string
	LLMAPIKey      string
	SemanticJudge  *bool
	Sandbox        *bool
}

// LoadEnv reads the environment
func LoadEnv() Env {
	return Env{
		ConfigPath:     getEnv("STREAKLINE_CONFIG", ""),
		Port:           getEnvInt("STREAKLINE_PORT", 0),
		Bind:           getEnv("STREAKLINE_BIND", ""),
		LogLevel:       getEnv("STREAKLINE_LOG_LEVEL", ""),
		StorageDriver:  getEnv("STREAKLINE_STORAGE_DRIVER", ""),
		DatabaseURL:    getEnv("STREAKLINE_DATABASE_URL", ""),
		CurriculumPath: getEnv("STREAKLINE_CURRICULUM_PATH", ""),
		XPPolicy:       getEnv("STREAKLINE_XP_POLICY", ""),
		CascadeMode:    getEnv("STREAKLINE_CASCADE_MODE", ""),
		AMQPURL:        getEnv("STREAKLINE_AMQP_URL", ""),
		LLMProvider:    getEnv("STREAKLINE_LLM_PROVIDER", ""),
		LLMModel:       getEnv("STREAKLINE_LLM_MODEL", ""),
		LLMBaseURL:     getEnv("STREAKLINE_LLM_BASE_URL", ""),
		LLMAPIKey:      getEnv("STREAKLINE_LLM_API_KEY", ""),
		SemanticJudge:  getEnvBoolPtr("STREAKLINE_SEMANTIC_JUDGE"),
		Sandbox:        getEnvBoolPtr("STREAKLINE_SANDBOX"),
	}
}

// Apply overlays the set variables onto cfg.
func (e Env) Apply(cfg *LocalConfig) {
	setInt(&cfg.Daemon.Port, e.Port)
	setString(&cfg.Daemon.Bind, e.Bind)
	setString(&cfg.Daemon.LogLevel, strings.ToLower(e.LogLevel))
	setString(&cfg.Storage.Driver, strings.ToLower(e.StorageDriver))
	setString(&cfg.Storage.DSN, e.DatabaseURL)
	setString(&cfg.Curriculum.Path, e.CurriculumPath)
	setString(&cfg.Rewards.XPPolicy, strings.ToLower(e.XPPolicy))
	setString(&cfg.Rewards.CascadeMode, strings.ToLower(e.CascadeMode))
	setString(&cfg.Rewards.AMQPURL, e.AMQPURL)
	setString(&cfg.Judge.Semantic.LLM.Provider, e.LLMProvider)
	setString(&cfg.Judge.Semantic.LLM.Model, e.LLMModel)
	setString(&cfg.Judge.Semantic.LLM.BaseURL, e.LLMBaseURL)
	setString(&cfg.Judge.Semantic.LLM.APIKey, e.LLMAPIKey)
	if e.SemanticJudge != nil {
		cfg.Judge.Semantic.Enabled = *e.SemanticJudge
	}
	if e.Sandbox != nil {
		cfg.Judge.Sandbox.Enabled = *e.Sandbox
	}
}

// Load reads the YAML file named by STREAKLINE_CONFIG (or the default
// path), applies environment overrides and validates the result.
func Load() (*LocalConfig, error) {
	env := LoadEnv()

	cfg, err := LoadLocalConfig(env.ConfigPath)
	if err != nil {
		return nil, err
	}
	env.Apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBoolPtr(key string) *bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return &b
		}
	}
	return nil
}
