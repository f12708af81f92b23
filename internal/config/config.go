// Package config provides configuration parsing and validation for the notifier.
//
// Every setting is a command-line flag whose default comes from the matching
// environment variable, so the same binary runs under Lambda (environment
// only) and as a long-running consumer (flags or environment).
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cloudtrail-notifier/internal/rules"
	"cloudtrail-notifier/internal/thread"
	"cloudtrail-notifier/pkg/shared"
)

var (
	// ErrNoRules is returned when the effective include rule set is empty.
	ErrNoRules = errors.New("have no rules to apply: add some or enable the default rules")
	// ErrMissingSecret is returned when no chat credential is configured.
	ErrMissingSecret = errors.New("HOOK_URL, SLACK_BOT_TOKEN or SLACK_BOT_TOKEN_SSM_PARAMETER_NAME must be set")
)

// Thread store backends.
const (
	ThreadStoreNone     = "none"
	ThreadStoreDynamoDB = "dynamodb"
	ThreadStoreRedis    = "redis"
	ThreadStorePostgres = "postgres"
)

// Fan-out backends.
const (
	FanoutNone  = "none"
	FanoutSNS   = "sns"
	FanoutKafka = "kafka"
)

// Event sources.
const (
	SourceLambda = "lambda"
	SourceKafka  = "kafka"
)

// Config holds all configuration parameters for the notifier.
type Config struct {
	// Rules.
	Rules           string
	IgnoreRules     string
	RulesSeparator  string
	UseDefaultRules bool
	EventsToTrack   string
	RulesFile       string
	FunctionName    string

	// Chat.
	RuleEvaluationErrorsToSlack bool
	HookURL                     string
	SlackBotToken               string
	SlackBotTokenSSMParameter   string
	DefaultSlackChannelID       string
	ConfigSSMParameter          string

	// Thread correlation.
	ThreadStore       string
	ThreadKeyStrategy string
	ThreadTTLSeconds  int
	DynamoDBTableName string
	RedisAddr         string
	PostgresDSN       string
	PostgresTable     string

	// Fan-out.
	Fanout                  string
	SNSTopicPattern         string
	KafkaBrokers            string
	KafkaFanoutTopicPattern string

	// Event source.
	Source          string
	KafkaLogsTopic  string
	ConsumerGroupID string

	// Observability.
	LogLevel         string
	MetricsRedisAddr string
	MetricsInstance  string
	HealthAddr       string
}

// RegisterFlags defines the notifier flags on fs with defaults taken from the
// environment and returns the Config they populate after fs.Parse.
func RegisterFlags(fs *flag.FlagSet) *Config {
	cfg := &Config{}
	env := shared.GetEnvOrDefault

	fs.StringVar(&cfg.Rules, "rules", env("RULES", ""), "Extra include rules, separated by --rules-separator")
	fs.StringVar(&cfg.IgnoreRules, "ignore-rules", env("IGNORE_RULES", ""), "Ignore rules, separated by --rules-separator")
	fs.StringVar(&cfg.RulesSeparator, "rules-separator", env("RULES_SEPARATOR", ","), "Separator for --rules and --ignore-rules")
	fs.BoolVar(&cfg.UseDefaultRules, "use-default-rules", shared.GetEnvBool("USE_DEFAULT_RULES", true), "Include the built-in rule set")
	fs.StringVar(&cfg.EventsToTrack, "events-to-track", env("EVENTS_TO_TRACK", ""), "Comma separated event names to always notify")
	fs.StringVar(&cfg.RulesFile, "rules-file", env("RULES_FILE", ""), "YAML file with rules and ignore_rules lists")
	fs.StringVar(&cfg.FunctionName, "function-name", env("FUNCTION_NAME", rules.DefaultFunctionName), "Notifier function name watched by the default rules")

	fs.BoolVar(&cfg.RuleEvaluationErrorsToSlack, "rule-evaluation-errors-to-slack", shared.GetEnvBool("RULE_EVALUATION_ERRORS_TO_SLACK", false), "Post rule evaluation errors to chat")
	fs.StringVar(&cfg.HookURL, "hook-url", env("HOOK_URL", ""), "Slack incoming webhook URL")
	fs.StringVar(&cfg.SlackBotToken, "slack-bot-token", env("SLACK_BOT_TOKEN", ""), "Slack bot token")
	fs.StringVar(&cfg.SlackBotTokenSSMParameter, "slack-bot-token-ssm-parameter", env("SLACK_BOT_TOKEN_SSM_PARAMETER_NAME", ""), "SSM parameter holding the Slack bot token")
	fs.StringVar(&cfg.DefaultSlackChannelID, "default-slack-channel-id", env("DEFAULT_SLACK_CHANNEL_ID", ""), "Slack channel for accounts without a route")
	fs.StringVar(&cfg.ConfigSSMParameter, "config-ssm-parameter", env("CONFIG_SSM_PARAMETER_NAME", ""), "SSM parameter holding per-account routing JSON")

	defaultStore := ThreadStoreNone
	if os.Getenv("DYNAMODB_TABLE_NAME") != "" {
		defaultStore = ThreadStoreDynamoDB
	}
	fs.StringVar(&cfg.ThreadStore, "thread-store", env("THREAD_STORE", defaultStore), "Thread store: none, dynamodb, redis or postgres")
	fs.StringVar(&cfg.ThreadKeyStrategy, "thread-key-strategy", env("THREAD_KEY_STRATEGY", thread.StrategyAccountWindow), "Thread key: account-window or principal-action")
	fs.IntVar(&cfg.ThreadTTLSeconds, "thread-ttl", shared.GetEnvInt("DYNAMODB_TIME_TO_LIVE", int(thread.DefaultTTL/time.Second)), "Seconds a thread keeps collecting replies")
	fs.StringVar(&cfg.DynamoDBTableName, "dynamodb-table", env("DYNAMODB_TABLE_NAME", ""), "DynamoDB table for threads")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", env("REDIS_ADDR", ""), "Redis address for threads")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", env("POSTGRES_DSN", ""), "PostgreSQL DSN for threads")
	fs.StringVar(&cfg.PostgresTable, "postgres-table", env("POSTGRES_TABLE", thread.DefaultPostgresTable), "PostgreSQL table for threads")

	defaultFanout := FanoutNone
	if os.Getenv("SNS_TOPIC_PATTERN") != "" {
		defaultFanout = FanoutSNS
	}
	fs.StringVar(&cfg.Fanout, "fanout", env("FANOUT", defaultFanout), "Fan-out: none, sns or kafka")
	fs.StringVar(&cfg.SNSTopicPattern, "sns-topic-pattern", env("SNS_TOPIC_PATTERN", ""), "SNS topic ARN pattern with ACCOUNT_ID placeholder")
	fs.StringVar(&cfg.KafkaBrokers, "kafka-brokers", env("KAFKA_BROKERS", ""), "Kafka broker addresses (comma-separated)")
	fs.StringVar(&cfg.KafkaFanoutTopicPattern, "kafka-fanout-topic-pattern", env("KAFKA_FANOUT_TOPIC_PATTERN", ""), "Kafka topic pattern with ACCOUNT_ID placeholder")

	fs.StringVar(&cfg.Source, "source", env("SOURCE", SourceLambda), "Event source: lambda or kafka")
	fs.StringVar(&cfg.KafkaLogsTopic, "kafka-logs-topic", env("KAFKA_LOGS_TOPIC", "cloudtrail.logs"), "Kafka topic carrying log batches")
	fs.StringVar(&cfg.ConsumerGroupID, "consumer-group-id", env("CONSUMER_GROUP_ID", "cloudtrail-notifier"), "Kafka consumer group ID")

	fs.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.MetricsRedisAddr, "metrics-redis-addr", env("METRICS_REDIS_ADDR", ""), "Redis address for metrics (empty disables)")
	fs.StringVar(&cfg.MetricsInstance, "metrics-instance", env("METRICS_INSTANCE", env("AWS_LAMBDA_FUNCTION_NAME", "cloudtrail-notifier")), "Metrics instance name")

	fs.StringVar(&cfg.HealthAddr, "health-addr", env("HEALTH_ADDR", ""), "Listen address for /health and /api/v1/metrics with the kafka source (empty disables)")

	return cfg
}

// Validate checks that all required configuration fields are set and have valid values.
func (c *Config) Validate() error {
	if c.HookURL == "" && c.SlackBotToken == "" && c.SlackBotTokenSSMParameter == "" {
		return ErrMissingSecret
	}
	if c.RulesSeparator == "" {
		return fmt.Errorf("rules-separator cannot be empty")
	}
	if c.ThreadTTLSeconds <= 0 {
		return fmt.Errorf("thread-ttl must be > 0")
	}

	switch c.ThreadStore {
	case ThreadStoreNone:
	case ThreadStoreDynamoDB:
		if c.DynamoDBTableName == "" {
			return fmt.Errorf("dynamodb-table cannot be empty when thread-store is dynamodb")
		}
	case ThreadStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis-addr cannot be empty when thread-store is redis")
		}
	case ThreadStorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres-dsn cannot be empty when thread-store is postgres")
		}
	default:
		return fmt.Errorf("unknown thread-store %q", c.ThreadStore)
	}

	switch c.ThreadKeyStrategy {
	case thread.StrategyAccountWindow, thread.StrategyPrincipalAction:
	default:
		return fmt.Errorf("unknown thread-key-strategy %q", c.ThreadKeyStrategy)
	}

	switch c.Fanout {
	case FanoutNone:
	case FanoutSNS:
		if c.SNSTopicPattern == "" {
			return fmt.Errorf("sns-topic-pattern cannot be empty when fanout is sns")
		}
	case FanoutKafka:
		if c.KafkaBrokers == "" {
			return fmt.Errorf("kafka-brokers cannot be empty when fanout is kafka")
		}
		if c.KafkaFanoutTopicPattern == "" {
			return fmt.Errorf("kafka-fanout-topic-pattern cannot be empty when fanout is kafka")
		}
	default:
		return fmt.Errorf("unknown fanout %q", c.Fanout)
	}

	switch c.Source {
	case SourceLambda:
	case SourceKafka:
		if c.KafkaBrokers == "" {
			return fmt.Errorf("kafka-brokers cannot be empty when source is kafka")
		}
		if c.KafkaLogsTopic == "" {
			return fmt.Errorf("kafka-logs-topic cannot be empty")
		}
		if c.ConsumerGroupID == "" {
			return fmt.Errorf("consumer-group-id cannot be empty")
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}

	return nil
}

// ThreadTTL returns the thread expiry as a duration.
func (c *Config) ThreadTTL() time.Duration {
	return time.Duration(c.ThreadTTLSeconds) * time.Second
}

// RuleSet is the ordered include and ignore rule text.
type RuleSet struct {
	Include []string `yaml:"rules"`
	Ignore  []string `yaml:"ignore_rules"`
}

// EffectiveRules assembles the rule set: default rules when enabled, then
// operator rules from the environment, then the rules file, then the
// generated EVENTS_TO_TRACK rule. It returns ErrNoRules when nothing remains.
func (c *Config) EffectiveRules() (RuleSet, error) {
	var set RuleSet
	if c.UseDefaultRules {
		set.Include = append(set.Include, rules.DefaultRules(c.FunctionName)...)
	}
	set.Include = append(set.Include, rules.SplitRules(c.Rules, c.RulesSeparator)...)
	set.Ignore = append(set.Ignore, rules.SplitRules(c.IgnoreRules, c.RulesSeparator)...)

	if c.RulesFile != "" {
		file, err := LoadRulesFile(c.RulesFile)
		if err != nil {
			return RuleSet{}, err
		}
		set.Include = append(set.Include, file.Include...)
		set.Ignore = append(set.Ignore, file.Ignore...)
	}

	if rule := rules.EventsToTrackRule(c.EventsToTrack); rule != "" {
		set.Include = append(set.Include, rule)
	}

	if len(set.Include) == 0 {
		return RuleSet{}, ErrNoRules
	}
	return set, nil
}

// LoadRulesFile reads a YAML rules file:
//
//	rules:
//	  - 'event.get("eventName", "") == "CreateUser"'
//	ignore_rules:
//	  - 'event.get("userIdentity.type", "") == "AWSService"'
func LoadRulesFile(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	set.Include = dropBlank(set.Include)
	set.Ignore = dropBlank(set.Ignore)
	return set, nil
}

func dropBlank(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseLogLevel maps LOG_LEVEL values to slog levels; unknown values mean info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
