// Command trailgen produces synthetic CloudTrail log batches, either to the
// Kafka topic the notifier consumes with SOURCE=kafka or to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"cloudtrail-notifier/internal/trailgen"
	kafkautil "cloudtrail-notifier/pkg/kafka"
	"cloudtrail-notifier/pkg/shared"
)

func main() {
	var (
		brokers   string
		topic     string
		batches   int
		batchSize int
		interval  time.Duration
		seed      int64
		eventDist string
		accounts  string
		owner     string
		logGroup  string
		mock      bool
	)
	flag.StringVar(&brokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&topic, "topic", shared.GetEnvOrDefault("KAFKA_LOGS_TOPIC", "cloudtrail.logs"), "Kafka topic for log batches")
	flag.IntVar(&batches, "batches", 10, "Number of log batches to send")
	flag.IntVar(&batchSize, "batch-size", 20, "Events per log batch")
	flag.DurationVar(&interval, "interval", time.Second, "Pause between batches")
	flag.Int64Var(&seed, "seed", 0, "Random seed for deterministic generation (0 = random)")
	flag.StringVar(&eventDist, "event-dist", trailgen.DefaultEventDist, "Event name distribution (format: EventName:percent,...)")
	flag.StringVar(&accounts, "accounts", "111111111111,222222222222", "Account IDs events are generated for (comma-separated)")
	flag.StringVar(&owner, "owner", "999999999999", "Account that owns the log group")
	flag.StringVar(&logGroup, "log-group", "aws-cloudtrail-logs", "Log group name")
	flag.BoolVar(&mock, "mock", false, "Write batches to stdout instead of Kafka")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if batches <= 0 || batchSize <= 0 {
		slog.Error("Invalid configuration", "error", "batches and batch-size must be > 0")
		os.Exit(1)
	}

	gen, err := trailgen.New(eventDist, splitList(accounts), seed)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	var writer *kafka.Writer
	if !mock {
		slog.Info("Connecting to Kafka", "brokers", brokers, "topic", topic)
		writer = kafkautil.NewWriter(kafkautil.ParseBrokers(brokers))
		defer writer.Close()
	}

	sent := 0
	for i := 0; i < batches; i++ {
		body, err := trailgen.Envelope(gen.GenerateBatch(batchSize), owner, logGroup)
		if err != nil {
			slog.Error("Failed to build log batch", "error", err)
			os.Exit(1)
		}

		if mock {
			fmt.Println(string(body))
		} else {
			err := writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(owner), Value: body})
			if err != nil {
				slog.Error("Failed to publish log batch", "batch", i+1, "error", err)
				os.Exit(1)
			}
		}
		sent++

		if i+1 < batches {
			select {
			case <-ctx.Done():
				slog.Info("Stopped early", "batches_sent", sent)
				return
			case <-time.After(interval):
			}
		}
	}
	slog.Info("Done", "batches_sent", sent, "events_sent", sent*batchSize)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
