package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/domain/repository"
	pkgkafka "AstroSense/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db       *sql.DB
	database string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, database string) repository.Storage {
	if database == "" {
		database = "astrosense"
	}
	return &ClickHouseStorage{db: db, database: database}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.measurements (
            ts DateTime64(3),
            solar_wind_speed Float64,
            bz Float64,
            kp_index Float64,
            proton_flux Float64,
            flare_class String,
            cme_speed Float64
        ) ENGINE = MergeTree() ORDER BY ts`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.composite_scores (
            ts DateTime64(3),
            score Float64,
            severity String,
            contributions String
        ) ENGINE = MergeTree() ORDER BY ts`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.alerts (
            id String,
            kind String,
            severity String,
            created_at DateTime64(3),
            expires_at DateTime64(3),
            payload String
        ) ENGINE = MergeTree() ORDER BY created_at`, s.database),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) StoreMeasurement(ctx context.Context, m *models.Measurement) error {
	q := fmt.Sprintf(
		"INSERT INTO %s.measurements (ts, solar_wind_speed, bz, kp_index, proton_flux, flare_class, cme_speed) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.database)
	_, err := s.db.ExecContext(ctx, q,
		m.Timestamp,
		m.SolarWindSpeed,
		m.Bz,
		m.KpIndex,
		m.ProtonFlux,
		m.FlareClass,
		m.CMESpeed,
	)
	return err
}

// StoreMeasurementBatch inserts measurements with multi-row VALUES to reduce
// round-trips. Chunk size tuned to 2000 rows per batch.
func (s *ClickHouseStorage) StoreMeasurementBatch(ctx context.Context, ms []*models.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(ms); start += chunkSize {
		end := start + chunkSize
		if end > len(ms) {
			end = len(ms)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, m := range ms[start:end] {
			if m == nil || m.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				m.Timestamp,
				m.SolarWindSpeed,
				m.Bz,
				m.KpIndex,
				m.ProtonFlux,
				m.FlareClass,
				m.CMESpeed,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO %s.measurements (ts, solar_wind_speed, bz, kp_index, proton_flux, flare_class, cme_speed) VALUES %s",
			s.database, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseStorage) StoreScore(ctx context.Context, sc *models.CompositeScore) error {
	contributions, err := json.Marshal(sc.ContributingFactors)
	if err != nil {
		return fmt.Errorf("marshal contributions: %w", err)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s.composite_scores (ts, score, severity, contributions) VALUES (?, ?, ?, ?)",
		s.database)
	_, err = s.db.ExecContext(ctx, q, sc.Timestamp, sc.Score, sc.Severity, string(contributions))
	return err
}

func (s *ClickHouseStorage) StoreAlert(ctx context.Context, a *models.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s.alerts (id, kind, severity, created_at, expires_at, payload) VALUES (?, ?, ?, ?, ?, ?)",
		s.database)
	_, err = s.db.ExecContext(ctx, q, a.ID, a.Kind, a.Severity, a.CreatedAt, a.ExpiresAt, string(payload))
	return err
}

func (s *ClickHouseStorage) QueryMeasurements(ctx context.Context, from, to time.Time, limit int) ([]*models.Measurement, error) {
	q := fmt.Sprintf(
		"SELECT ts, solar_wind_speed, bz, kp_index, proton_flux, flare_class, cme_speed FROM %s.measurements WHERE ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?",
		s.database)
	rows, err := s.db.QueryContext(ctx, q, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Measurement
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.Timestamp, &m.SolarWindSpeed, &m.Bz, &m.KpIndex, &m.ProtonFlux, &m.FlareClass, &m.CMESpeed); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka. Measurements, scores and
// alerts each go to their own topic.
type KafkaPublisher struct {
	producer         *pkgkafka.Producer
	measurementTopic string
	scoreTopic       string
	alertTopic       string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, measurementTopic, scoreTopic, alertTopic string) repository.Publisher {
	return &KafkaPublisher{
		producer:         producer,
		measurementTopic: measurementTopic,
		scoreTopic:       scoreTopic,
		alertTopic:       alertTopic,
	}
}

func (p *KafkaPublisher) PublishMeasurement(ctx context.Context, m *models.Measurement) error {
	key := []byte(m.Timestamp.UTC().Format(time.RFC3339))
	return p.producer.Publish(ctx, p.measurementTopic, key, m)
}

func (p *KafkaPublisher) PublishScore(ctx context.Context, s *models.CompositeScore) error {
	key := []byte(s.Timestamp.UTC().Format(time.RFC3339))
	return p.producer.Publish(ctx, p.scoreTopic, key, s)
}

func (p *KafkaPublisher) PublishAlert(ctx context.Context, a *models.Alert) error {
	return p.producer.Publish(ctx, p.alertTopic, []byte(a.ID), a)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
