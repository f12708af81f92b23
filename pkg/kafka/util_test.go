package kafka

import (
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		want    []string
	}{
		{name: "empty", brokers: "", want: nil},
		{name: "single", brokers: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "multiple with spaces", brokers: "a:9092, b:9092 ,c:9092", want: []string{"a:9092", "b:9092", "c:9092"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseBrokers(tt.brokers); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseBrokers(%q) = %v, want %v", tt.brokers, got, tt.want)
			}
		})
	}
}

func TestValidateConsumerParams(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		topic   string
		groupID string
		wantErr bool
	}{
		{name: "valid", brokers: "localhost:9092", topic: "cloudtrail.logs", groupID: "notifier", wantErr: false},
		{name: "no brokers", brokers: "", topic: "cloudtrail.logs", groupID: "notifier", wantErr: true},
		{name: "no topic", brokers: "localhost:9092", topic: "", groupID: "notifier", wantErr: true},
		{name: "no group", brokers: "localhost:9092", topic: "cloudtrail.logs", groupID: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConsumerParams(tt.brokers, tt.topic, tt.groupID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConsumerParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewReaderConfig(t *testing.T) {
	cfg := NewReaderConfig([]string{"localhost:9092"}, "cloudtrail.logs", "notifier")

	if cfg.Topic != "cloudtrail.logs" {
		t.Errorf("Topic = %q, want cloudtrail.logs", cfg.Topic)
	}
	if cfg.CommitInterval != 0 {
		t.Errorf("CommitInterval = %v, want 0 (explicit commits)", cfg.CommitInterval)
	}
	if cfg.StartOffset != kafka.FirstOffset {
		t.Errorf("StartOffset = %v, want FirstOffset", cfg.StartOffset)
	}
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"})
	defer w.Close()

	if w.Topic != "" {
		t.Errorf("Topic = %q, want empty (per-message topics)", w.Topic)
	}
	if w.Async {
		t.Error("writer should be synchronous")
	}
	if w.RequiredAcks != kafka.RequireOne {
		t.Errorf("RequiredAcks = %v, want RequireOne", w.RequiredAcks)
	}
}
