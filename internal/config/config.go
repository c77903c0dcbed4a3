// Package config loads service configuration from the environment, with an
// optional YAML file overlay.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PYPE-AI-MAIN/whispey/internal/service/bugreport"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/export"
)

type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Export        ExportConfig        `yaml:"export"`
	BugReport     bugreport.Config    `yaml:"bug_report"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	GRPCPort    string `yaml:"grpc_port"`
	HTTPPort    string `yaml:"http_port"`
	Environment string `yaml:"environment"`
}

type ExportConfig struct {
	APIURL               string        `yaml:"api_url"`
	APIKey               string        `yaml:"api_key"`
	CompressionThreshold int           `yaml:"compression_threshold"`
	TwoPhaseThreshold    int           `yaml:"two_phase_threshold"`
	Timeout              time.Duration `yaml:"timeout"`
	Environment          string        `yaml:"environment"`
}

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	TopicCallLog   string   `yaml:"topic_call_log"`
	TopicBugReport string   `yaml:"topic_bug_report"`
	Principal      string   `yaml:"principal"`
}

type EvaluationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type PricingConfig struct {
	RatesFile string `yaml:"rates_file"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Load reads configuration from the environment. Values that fail to parse
// fall back to their defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-whispey")
	defaults := bugreport.DefaultConfig()

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			Environment: envOrDefault("ENV", "dev"),
		},
		Export: ExportConfig{
			APIURL:               envOrDefault("EXPORT_API_URL", export.DefaultAPIURL),
			APIKey:               envOrDefault("EXPORT_API_KEY", os.Getenv("WHISPEY_API_KEY")),
			CompressionThreshold: envOrDefaultInt("EXPORT_COMPRESSION_THRESHOLD", export.DefaultCompressionThreshold),
			TwoPhaseThreshold:    envOrDefaultInt("EXPORT_TWO_PHASE_THRESHOLD", export.DefaultTwoPhaseThreshold),
			Timeout:              envOrDefaultDuration("EXPORT_TIMEOUT", export.DefaultTimeout),
			Environment:          envOrDefault("EXPORT_ENVIRONMENT", export.DefaultEnvironment),
		},
		BugReport: bugreport.Config{
			Enabled:            envOrDefaultBool("BUG_REPORT_ENABLED", defaults.Enabled),
			StartPhrases:       envOrDefaultList("BUG_REPORT_START_PHRASES", defaults.StartPhrases),
			EndPhrases:         envOrDefaultList("BUG_REPORT_END_PHRASES", defaults.EndPhrases),
			Acknowledgement:    envOrDefault("BUG_REPORT_RESPONSE", defaults.Acknowledgement),
			ContinuationPrefix: envOrDefault("BUG_REPORT_CONTINUATION_PREFIX", defaults.ContinuationPrefix),
			FallbackMessage:    envOrDefault("BUG_REPORT_FALLBACK_MESSAGE", defaults.FallbackMessage),
			CollectionPrompt:   envOrDefault("BUG_REPORT_COLLECTION_PROMPT", defaults.CollectionPrompt),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicCallLog:   envOrDefault("KAFKA_TOPIC_CALL_LOG", "whispey.call-logs.v1"),
			TopicBugReport: envOrDefault("KAFKA_TOPIC_BUG_REPORT", "whispey.bug-reports.v1"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Evaluation: EvaluationConfig{
			Timeout: envOrDefaultDuration("EVAL_TIMEOUT", 30*time.Second),
		},
		Pricing: PricingConfig{
			RatesFile: os.Getenv("PRICING_RATES_FILE"),
		},
		Observability: ObservabilityConfig{
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envOrDefaultList splits a comma-separated value, trimming blanks.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
