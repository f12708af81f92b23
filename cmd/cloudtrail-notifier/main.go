package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"cloudtrail-notifier/internal/chat"
	"cloudtrail-notifier/internal/classifier"
	"cloudtrail-notifier/internal/config"
	"cloudtrail-notifier/internal/consumer"
	"cloudtrail-notifier/internal/dispatcher"
	"cloudtrail-notifier/internal/events"
	"cloudtrail-notifier/internal/fanout"
	"cloudtrail-notifier/internal/health"
	"cloudtrail-notifier/internal/metrics"
	"cloudtrail-notifier/internal/processor"
	"cloudtrail-notifier/internal/rules"
	"cloudtrail-notifier/internal/secrets"
	"cloudtrail-notifier/internal/thread"
	kafkautil "cloudtrail-notifier/pkg/kafka"
	sharedmetrics "cloudtrail-notifier/pkg/metrics"
	"cloudtrail-notifier/pkg/shared"
)

func main() {
	cfg := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	// Lambda ships stdout to CloudWatch Logs, where JSON lines are queryable
	handlerOpts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}
	if cfg.Source == config.SourceLambda {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, handlerOpts)))
	}

	slog.Info("Starting cloudtrail notifier",
		"source", cfg.Source,
		"use_default_rules", cfg.UseDefaultRules,
		"rules_file", cfg.RulesFile,
		"thread_store", cfg.ThreadStore,
		"thread_key_strategy", cfg.ThreadKeyStrategy,
		"thread_ttl", cfg.ThreadTTL(),
		"fanout", cfg.Fanout,
		"rule_evaluation_errors_to_slack", cfg.RuleEvaluationErrorsToSlack,
		"metrics_redis_addr", cfg.MetricsRedisAddr,
		"health_addr", cfg.HealthAddr,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ruleSet, err := cfg.EffectiveRules()
	if err != nil {
		slog.Error("Failed to load rules", "error", err)
		os.Exit(1)
	}
	include := rules.Compile(ruleSet.Include)
	ignore := rules.Compile(ruleSet.Ignore)
	for _, r := range append(append([]*rules.Rule{}, include...), ignore...) {
		if r.Err() != nil {
			// Reported on every evaluation as well; logged here so a bad deploy is visible at start
			slog.Warn("Rule does not compile", "rule", r.String(), "error", r.Err())
		}
	}
	slog.Info("Rules loaded", "include_rules", len(include), "ignore_rules", len(ignore))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Source == config.SourceKafka {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			slog.Info("Received shutdown signal, shutting down gracefully...")
			cancel()
		}()
	}

	var awsCfg aws.Config
	if needsAWS(cfg) {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("Failed to load AWS configuration", "error", err)
			os.Exit(1)
		}
	}

	poster, err := buildPoster(ctx, cfg, awsCfg)
	if err != nil {
		slog.Error("Failed to configure chat", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := buildThreadStore(ctx, cfg, awsCfg)
	if err != nil {
		slog.Error("Failed to connect thread store", "store", cfg.ThreadStore, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	publisher, closePublisher := buildPublisher(cfg, awsCfg)
	defer closePublisher()

	threadKey, err := thread.NewKeyFunc(cfg.ThreadKeyStrategy, cfg.ThreadTTL(), nil)
	if err != nil {
		slog.Error("Invalid thread key strategy", "error", err)
		os.Exit(1)
	}

	var (
		recorder  metrics.Recorder = metrics.NewNoOp()
		collector *sharedmetrics.Collector
	)
	if cfg.MetricsRedisAddr != "" {
		metricsRedis, err := shared.ConnectRedis(ctx, cfg.MetricsRedisAddr)
		if err != nil {
			// Metrics are optional; run without them
			slog.Warn("Metrics disabled", "error", err)
		} else {
			defer metricsRedis.Close()
			collector = sharedmetrics.NewCollector(cfg.MetricsInstance, metricsRedis)
			slog.Info("Metrics collector enabled", "instance", cfg.MetricsInstance)
		}
	}
	if collector == nil && cfg.Source == config.SourceKafka && cfg.HealthAddr != "" {
		// in-memory counters for the metrics endpoint
		collector = sharedmetrics.NewCollector(cfg.MetricsInstance, nil)
	}
	if collector != nil {
		recorder = metrics.NewCollectorAdapter(collector)
	}

	disp := dispatcher.New(dispatcher.Options{
		Poster:           poster,
		Publisher:        publisher,
		Correlator:       thread.NewCorrelator(store, cfg.ThreadTTL()),
		ThreadKey:        threadKey,
		RuleErrorsToChat: cfg.RuleEvaluationErrorsToSlack,
		Metrics:          recorder,
	})
	proc := processor.NewProcessor(classifier.New(include, ignore), disp, recorder)

	switch cfg.Source {
	case config.SourceLambda:
		lambda.StartWithOptions(func(ctx context.Context, ev lambdaevents.CloudwatchLogsEvent) error {
			_, err := proc.HandleLogs(ctx, ev.AWSLogs)
			if collector != nil {
				collector.Flush(ctx)
			}
			return err
		}, lambda.WithContext(ctx))

	case config.SourceKafka:
		kafkaConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.KafkaLogsTopic, cfg.ConsumerGroupID)
		if err != nil {
			slog.Error("Failed to create Kafka consumer", "error", err)
			os.Exit(1)
		}
		defer kafkaConsumer.Close()

		if collector != nil {
			collector.Start(ctx)
			defer collector.Stop()
		}

		if cfg.HealthAddr != "" {
			srv := health.NewServer(cfg.HealthAddr, collector)
			go func() {
				slog.Info("Health server listening", "addr", cfg.HealthAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("Health server failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				srv.Shutdown(shutdownCtx)
			}()
		}

		err = kafkaConsumer.Run(ctx, func(ctx context.Context, records []events.Record) {
			proc.ProcessRecords(ctx, records)
		})
		if err != nil {
			slog.Error("Consumer stopped with error", "error", err)
			cancel()
			os.Exit(1)
		}
		slog.Info("Cloudtrail notifier stopped")
	}
}

func needsAWS(cfg *config.Config) bool {
	return cfg.ThreadStore == config.ThreadStoreDynamoDB ||
		cfg.Fanout == config.FanoutSNS ||
		(cfg.SlackBotToken == "" && cfg.SlackBotTokenSSMParameter != "") ||
		cfg.ConfigSSMParameter != ""
}

// buildPoster resolves chat credentials, from SSM when configured, and creates the poster.
func buildPoster(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (chat.Poster, error) {
	creds := secrets.Credentials{BotToken: cfg.SlackBotToken}
	if cfg.SlackBotTokenSSMParameter != "" || cfg.ConfigSSMParameter != "" {
		resolver := secrets.NewResolver(ssm.NewFromConfig(awsCfg))
		resolved, err := resolver.Resolve(ctx, creds, cfg.SlackBotTokenSSMParameter, cfg.ConfigSSMParameter)
		if err != nil {
			return nil, err
		}
		creds = resolved
	}

	routes, err := chat.ParseRoutes(creds.RoutesJSON)
	if err != nil {
		return nil, err
	}
	chatCfg, err := chat.NewConfig(cfg.HookURL, creds.BotToken, cfg.DefaultSlackChannelID, routes)
	if err != nil {
		return nil, err
	}
	slog.Info("Chat configured",
		"mode", chatCfg.Kind,
		"routes", len(chatCfg.Routes),
		"hook_url", shared.MaskSecret(chatCfg.HookURL),
	)
	return chat.New(chatCfg)
}

// buildThreadStore connects the configured thread store. The returned close
// function is always safe to call.
func buildThreadStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (thread.Store, func(), error) {
	noop := func() {}
	switch cfg.ThreadStore {
	case config.ThreadStoreDynamoDB:
		slog.Info("Using DynamoDB thread store", "table", cfg.DynamoDBTableName)
		return thread.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTableName), noop, nil

	case config.ThreadStoreRedis:
		slog.Info("Connecting to Redis thread store", "addr", cfg.RedisAddr)
		client, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, noop, err
		}
		return thread.NewRedisStore(client), closer(client), nil

	case config.ThreadStorePostgres:
		slog.Info("Connecting to PostgreSQL thread store", "dsn", shared.MaskSecret(cfg.PostgresDSN), "table", cfg.PostgresTable)
		store, err := thread.NewPostgresStore(ctx, cfg.PostgresDSN, cfg.PostgresTable)
		if err != nil {
			return nil, noop, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, noop, err
		}
		return store, closer(store), nil

	default:
		return thread.NopStore{}, noop, nil
	}
}

// buildPublisher creates the configured fan-out publisher.
func buildPublisher(cfg *config.Config, awsCfg aws.Config) (fanout.Publisher, func()) {
	switch cfg.Fanout {
	case config.FanoutSNS:
		slog.Info("Fan-out to SNS", "topic_pattern", cfg.SNSTopicPattern)
		return fanout.NewSNSPublisher(sns.NewFromConfig(awsCfg), cfg.SNSTopicPattern), func() {}
	case config.FanoutKafka:
		slog.Info("Fan-out to Kafka", "topic_pattern", cfg.KafkaFanoutTopicPattern)
		writer := kafkautil.NewWriter(kafkautil.ParseBrokers(cfg.KafkaBrokers))
		return fanout.NewKafkaPublisher(writer, cfg.KafkaFanoutTopicPattern), closer(writer)
	default:
		return fanout.Nop{}, func() {}
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Error("Error closing resource", "error", err)
		}
	}
}
