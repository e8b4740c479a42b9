package usecase

import (
	"context"
	"encoding/json"
	"time"

	"AstroSense/internal/domain/models"
	domrepo "AstroSense/internal/domain/repository"
	pkgkafka "AstroSense/pkg/kafka"
)

// KafkaMeasurementsHandler consumes measurement messages and writes them to
// storage. This is the persistence side of the kafka backend split.
type KafkaMeasurementsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaMeasurementsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaMeasurementsHandler {
	return &KafkaMeasurementsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaMeasurementsHandler) Topic() string { return h.topic }

// incoming message schema matches models.Measurement JSON
func (h *KafkaMeasurementsHandler) Handle(ctx context.Context, b []byte) error {
	var m models.Measurement
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(m.Timestamp).Seconds())

	start := time.Now()
	err := h.storage.StoreMeasurement(ctx, &m)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaMeasurementsHandler)(nil)
