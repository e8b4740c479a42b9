package logger

import (
	"context"
	"testing"
	"time"
)

type capturingPublisher struct {
	ch chan []AggregatedLogEntry
}

func (p *capturingPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	if logs, ok := payload.([]AggregatedLogEntry); ok {
		p.ch <- logs
	}
	return nil
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &capturingPublisher{ch: make(chan []AggregatedLogEntry, 1)}

	l, err := New(&Config{Level: "info", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour, // flush by count, not time
		CountThreshold: 2,
		Topic:          "astrosense.logs",
		Publisher:      pub,
	})
	defer l.RemoveCollector()

	// same call site: three identical errors collapse into one entry
	for i := 0; i < 3; i++ {
		l.Error("archive fetch failed", String("source", "donki"))
	}
	// second unique entry reaches the count threshold and triggers a flush
	l.Error("schema init failed")

	var logs []AggregatedLogEntry
	select {
	case logs = <-pub.ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("aggregated logs never flushed")
	}

	if len(logs) != 2 {
		t.Fatalf("expected 2 aggregated entries, got %d", len(logs))
	}
	byMessage := make(map[string]AggregatedLogEntry, len(logs))
	for _, entry := range logs {
		byMessage[entry.Message] = entry
	}
	fetch, ok := byMessage["archive fetch failed"]
	if !ok {
		t.Fatalf("missing aggregated entry: %v", logs)
	}
	if fetch.Count != 3 {
		t.Fatalf("expected count 3, got %d", fetch.Count)
	}
	if fetch.Fields["source"] != "donki" {
		t.Fatalf("fields lost in aggregation: %v", fetch.Fields)
	}
	if byMessage["schema init failed"].Count != 1 {
		t.Fatalf("unique entry must count once")
	}
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &capturingPublisher{ch: make(chan []AggregatedLogEntry, 1)}

	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "astrosense.logs",
		Publisher:      pub,
	})
	c.AddLog("error", "producer write failed", nil, "pkg/kafka/producer.go:65")
	c.Close()

	select {
	case logs := <-pub.ch:
		if len(logs) != 1 || logs[0].Message != "producer write failed" {
			t.Fatalf("unexpected flush payload: %v", logs)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending logs must flush on close")
	}
}
