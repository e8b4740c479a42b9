package fusion

import (
	"fmt"
	"math"
	"sync"
	"time"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// DefaultConflictThreshold is the absolute difference beyond which the two
// estimators are considered in conflict and the conservative value wins.
const DefaultConflictThreshold = 20.0

const (
	DefaultMLWeight      = 0.6
	DefaultPhysicsWeight = 0.4
)

// Conflict describes one resolved disagreement for a single key.
type Conflict struct {
	ML       float64 `json:"ml"`
	Physics  float64 `json:"physics"`
	Resolved float64 `json:"resolved"`
}

// Result is the output of one fusion pass.
type Result struct {
	Predictions map[string]float64  `json:"predictions"`
	Conflicts   map[string]Conflict `json:"conflicts"`
}

// DiscrepancySummary aggregates the append-only discrepancy log.
type DiscrepancySummary struct {
	Total         int                  `json:"total_discrepancies"`
	Fields        []string             `json:"fields_with_conflicts"`
	AverageDiff   float64              `json:"average_difference"`
	MaxDiff       float64              `json:"max_difference"`
	RecentEntries []models.Discrepancy `json:"recent_discrepancies"`
}

// Combiner blends statistical-estimator output with physics rule output at
// fixed weights and resolves large disagreements conservatively. The
// discrepancy log is append-only; entries are never rewritten.
type Combiner struct {
	mlWeight      float64
	physicsWeight float64
	threshold     float64

	mu  sync.Mutex
	log []models.Discrepancy

	l *applogger.Logger
}

// New builds a Combiner. Weights must sum to 1.0 within 0.01.
func New(mlWeight, physicsWeight float64, l *applogger.Logger) (*Combiner, error) {
	if math.Abs(mlWeight+physicsWeight-1.0) >= 0.01 {
		return nil, fmt.Errorf("fusion weights must sum to 1.0, got %.3f", mlWeight+physicsWeight)
	}
	return &Combiner{
		mlWeight:      mlWeight,
		physicsWeight: physicsWeight,
		threshold:     DefaultConflictThreshold,
		l:             l,
	}, nil
}

// SetConflictThreshold overrides the disagreement threshold. Values <= 0
// keep the default.
func (c *Combiner) SetConflictThreshold(t float64) {
	if t > 0 {
		c.threshold = t
	}
}

// NewDefault builds the standard 60/40 combiner.
func NewDefault(l *applogger.Logger) *Combiner {
	c, _ := New(DefaultMLWeight, DefaultPhysicsWeight, l)
	return c
}

// Combine blends the two maps over the union of their keys. A key missing
// from one side contributes 0 for that side.
func (c *Combiner) Combine(ml, physics map[string]float64) map[string]float64 {
	combined := make(map[string]float64, len(ml)+len(physics))
	for key := range unionKeys(ml, physics) {
		combined[key] = c.mlWeight*ml[key] + c.physicsWeight*physics[key]
	}
	return combined
}

// Resolve fuses a single key. When the absolute difference exceeds the
// threshold, the higher (conservative) value wins and the discrepancy is
// logged; otherwise the weighted blend is used without logging.
func (c *Combiner) Resolve(field string, mlVal, physicsVal float64) (float64, bool) {
	diff := math.Abs(mlVal - physicsVal)
	if diff <= c.threshold {
		return c.mlWeight*mlVal + c.physicsWeight*physicsVal, false
	}

	resolved := math.Max(mlVal, physicsVal)
	c.mu.Lock()
	c.log = append(c.log, models.Discrepancy{
		Field:         field,
		MLValue:       mlVal,
		PhysicsValue:  physicsVal,
		Difference:    diff,
		ResolvedValue: resolved,
		Resolution:    "conservative",
		At:            time.Now().UTC(),
	})
	c.mu.Unlock()

	if c.l != nil {
		c.l.Warn("fusion: estimator conflict, using conservative value",
			applogger.String("field", field),
			applogger.Any("ml", mlVal),
			applogger.Any("physics", physicsVal),
			applogger.Any("diff", diff),
			applogger.Any("resolved", resolved))
	}
	return resolved, true
}

// Fuse runs conflict-aware fusion over the key union of both prediction maps.
func (c *Combiner) Fuse(ml, physics map[string]float64) Result {
	res := Result{
		Predictions: make(map[string]float64, len(ml)+len(physics)),
		Conflicts:   make(map[string]Conflict),
	}
	for key := range unionKeys(ml, physics) {
		mlVal, physicsVal := ml[key], physics[key]
		resolved, conflicted := c.Resolve(key, mlVal, physicsVal)
		res.Predictions[key] = resolved
		if conflicted {
			res.Conflicts[key] = Conflict{ML: mlVal, Physics: physicsVal, Resolved: resolved}
		}
	}
	if len(res.Conflicts) > 0 && c.l != nil {
		c.l.Info("fusion: conflicts resolved conservatively",
			applogger.Int("count", len(res.Conflicts)))
	}
	return res
}

// Confidence scores per-key agreement between the two estimators. Full
// agreement (including both absent) scores 1.0.
func (c *Combiner) Confidence(ml, physics map[string]float64) map[string]float64 {
	confidence := make(map[string]float64, len(ml)+len(physics))
	for key := range unionKeys(ml, physics) {
		mlVal, physicsVal := ml[key], physics[key]
		if mlVal == 0 && physicsVal == 0 {
			confidence[key] = 1.0
			continue
		}
		maxVal := math.Max(math.Max(math.Abs(mlVal), math.Abs(physicsVal)), 1.0)
		diff := math.Abs(mlVal - physicsVal)
		confidence[key] = 1.0 - math.Min(diff/maxVal, 1.0)
	}
	return confidence
}

// DiscrepancySummary reports totals, distinct fields, average and maximum
// differences, and the ten most recent entries.
func (c *Combiner) DiscrepancySummary() DiscrepancySummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.log) == 0 {
		return DiscrepancySummary{Fields: []string{}, RecentEntries: []models.Discrepancy{}}
	}

	seen := make(map[string]struct{})
	var fields []string
	var sum, maxDiff float64
	for _, d := range c.log {
		if _, ok := seen[d.Field]; !ok {
			seen[d.Field] = struct{}{}
			fields = append(fields, d.Field)
		}
		sum += d.Difference
		if d.Difference > maxDiff {
			maxDiff = d.Difference
		}
	}

	recent := c.log
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	out := make([]models.Discrepancy, len(recent))
	copy(out, recent)

	return DiscrepancySummary{
		Total:         len(c.log),
		Fields:        fields,
		AverageDiff:   sum / float64(len(c.log)),
		MaxDiff:       maxDiff,
		RecentEntries: out,
	}
}

func unionKeys(a, b map[string]float64) map[string]struct{} {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	return keys
}
