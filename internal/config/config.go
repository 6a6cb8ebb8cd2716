package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the dispatch service. Both
// entry points (HTTP server and Kafka worker) share this shape; values are
// loaded once at startup and never mutated afterwards.
type Config struct {
	App      AppConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Kafka    KafkaConfig
	Timeouts TimeoutConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// AuthConfig points at the auth service, which owns both the user registry
// (identity directory) and the policy engine the gate delegates to.
type AuthConfig struct {
	ServiceURL string
}

// SMTPConfig stores SMTP settings for email delivery. An empty Host selects
// the console-fallback transport.
type SMTPConfig struct {
	Host   string
	Port   int
	User   string
	Pass   string
	From   string
	UseTLS bool
}

// KafkaConfig defines broker information plus the topics used by the Kafka
// ingress worker. All values are optional for the HTTP server.
type KafkaConfig struct {
	Brokers           []string
	RequestTopic      string
	ResultTopic       string
	AlertTopic        string
	ConsumerGroup     string
	WorkerConcurrency int
	MsgMaxBytes       int
}

// TimeoutConfig contains the bounded timeouts applied to external calls.
type TimeoutConfig struct {
	AuthoritySeconds int
	DirectorySeconds int
	TransportSeconds int
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 3008, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Auth.ServiceURL = ldr.getString("AUTH_SERVICE_URL", "http://auth-service:3006", false)

	cfg.SMTP.Host = ldr.getString("SMTP_HOST", "", false)
	cfg.SMTP.Port = ldr.getInt("SMTP_PORT", 1025, false)
	cfg.SMTP.User = ldr.getString("SMTP_USER", "", false)
	cfg.SMTP.Pass = ldr.getString("SMTP_PASSWORD", "", false)
	cfg.SMTP.From = ldr.getString("SMTP_FROM", "noreply@swarm-blackjack.local", false)
	cfg.SMTP.UseTLS = ldr.getBool("SMTP_USE_TLS", false, false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.RequestTopic = ldr.getString("KAFKA_DISPATCH_REQUEST_TOPIC", "dispatch.requests", false)
	cfg.Kafka.ResultTopic = ldr.getString("KAFKA_DISPATCH_RESULT_TOPIC", "dispatch.results", false)
	cfg.Kafka.AlertTopic = ldr.getString("KAFKA_SECURITY_ALERT_TOPIC", "dispatch.security-alerts", false)
	cfg.Kafka.ConsumerGroup = ldr.getString("DISPATCH_CONSUMER_GROUP", "dispatch-worker", false)
	cfg.Kafka.WorkerConcurrency = ldr.getInt("WORKER_CONCURRENCY", 10, false)
	cfg.Kafka.MsgMaxBytes = ldr.getInt("MSG_MAX_BYTES", 200000, false)

	cfg.Timeouts.AuthoritySeconds = ldr.getInt("AUTHORITY_TIMEOUT_SECONDS", 5, false)
	cfg.Timeouts.DirectorySeconds = ldr.getInt("DIRECTORY_TIMEOUT_SECONDS", 3, false)
	cfg.Timeouts.TransportSeconds = ldr.getInt("TRANSPORT_TIMEOUT_SECONDS", 10, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// TransportMode summarises how delivery is configured, for the health
// endpoint.
func (c *Config) TransportMode() string {
	switch {
	case c.SMTP.Host == "":
		return "console"
	case c.SMTP.Host == "mailhog":
		return "mailhog"
	default:
		return "smtp"
	}
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
