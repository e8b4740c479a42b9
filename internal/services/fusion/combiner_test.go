package fusion

import (
	"math"
	"testing"
)

func TestNewRejectsBadWeights(t *testing.T) {
	if _, err := New(0.7, 0.4, nil); err == nil {
		t.Fatalf("expected error for weights summing to 1.1")
	}
	if _, err := New(0.6, 0.4, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCombineWeightedBlend(t *testing.T) {
	c := NewDefault(nil)
	got := c.Combine(map[string]float64{"a": 50}, map[string]float64{"a": 60})
	want := 0.6*50 + 0.4*60
	if math.Abs(got["a"]-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got["a"])
	}
}

func TestCombineUnionOfKeys(t *testing.T) {
	c := NewDefault(nil)
	got := c.Combine(map[string]float64{"ml_only": 10}, map[string]float64{"phys_only": 10})
	if math.Abs(got["ml_only"]-6) > 1e-9 {
		t.Fatalf("ml-only key: got %v", got["ml_only"])
	}
	if math.Abs(got["phys_only"]-4) > 1e-9 {
		t.Fatalf("physics-only key: got %v", got["phys_only"])
	}
}

func TestResolveWithinThreshold(t *testing.T) {
	c := NewDefault(nil)
	got, conflicted := c.Resolve("f", 50, 70)
	if conflicted {
		t.Fatalf("diff 20 is at the threshold, must not conflict")
	}
	if math.Abs(got-(0.6*50+0.4*70)) > 1e-9 {
		t.Fatalf("expected blend, got %v", got)
	}
	if c.DiscrepancySummary().Total != 0 {
		t.Fatalf("no discrepancy should be logged")
	}
}

func TestResolveConflictTakesConservative(t *testing.T) {
	c := NewDefault(nil)
	got, conflicted := c.Resolve("f", 30, 80)
	if !conflicted {
		t.Fatalf("diff 50 must conflict")
	}
	if got != 80 {
		t.Fatalf("expected max value 80, got %v", got)
	}

	sum := c.DiscrepancySummary()
	if sum.Total != 1 {
		t.Fatalf("expected one logged discrepancy, got %d", sum.Total)
	}
	if sum.RecentEntries[0].Resolution != "conservative" {
		t.Fatalf("unexpected resolution %q", sum.RecentEntries[0].Resolution)
	}
}

func TestSetConflictThreshold(t *testing.T) {
	c := NewDefault(nil)
	c.SetConflictThreshold(40)
	if _, conflicted := c.Resolve("f", 30, 60); conflicted {
		t.Fatalf("diff 30 below raised threshold must not conflict")
	}
	c.SetConflictThreshold(0) // ignored
	if _, conflicted := c.Resolve("f", 30, 80); !conflicted {
		t.Fatalf("diff 50 above threshold 40 must conflict")
	}
}

func TestFuseCollectsConflicts(t *testing.T) {
	c := NewDefault(nil)
	res := c.Fuse(
		map[string]float64{"calm": 10, "storm": 90},
		map[string]float64{"calm": 12, "storm": 20},
	)
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(res.Conflicts))
	}
	cf, ok := res.Conflicts["storm"]
	if !ok {
		t.Fatalf("expected conflict on storm key")
	}
	if cf.Resolved != 90 {
		t.Fatalf("expected resolved 90, got %v", cf.Resolved)
	}
	if math.Abs(res.Predictions["calm"]-(0.6*10+0.4*12)) > 1e-9 {
		t.Fatalf("calm key must blend: got %v", res.Predictions["calm"])
	}
}

func TestConfidenceAgreement(t *testing.T) {
	c := NewDefault(nil)
	conf := c.Confidence(
		map[string]float64{"same": 50, "off": 50, "zero": 0},
		map[string]float64{"same": 50, "off": 100, "zero": 0},
	)
	if conf["same"] != 1.0 {
		t.Fatalf("identical values must score 1.0, got %v", conf["same"])
	}
	if conf["zero"] != 1.0 {
		t.Fatalf("both-absent must score 1.0, got %v", conf["zero"])
	}
	if math.Abs(conf["off"]-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %v", conf["off"])
	}
}

func TestDiscrepancySummaryStats(t *testing.T) {
	c := NewDefault(nil)
	c.Resolve("a", 0, 30)  // diff 30
	c.Resolve("b", 0, 50)  // diff 50
	c.Resolve("a", 10, 40) // diff 30

	sum := c.DiscrepancySummary()
	if sum.Total != 3 {
		t.Fatalf("expected 3 entries, got %d", sum.Total)
	}
	if len(sum.Fields) != 2 {
		t.Fatalf("expected 2 distinct fields, got %v", sum.Fields)
	}
	if sum.MaxDiff != 50 {
		t.Fatalf("expected max 50, got %v", sum.MaxDiff)
	}
	want := (30.0 + 50.0 + 30.0) / 3.0
	if math.Abs(sum.AverageDiff-want) > 1e-9 {
		t.Fatalf("expected average %v, got %v", want, sum.AverageDiff)
	}
}

func TestDiscrepancySummaryRecentCap(t *testing.T) {
	c := NewDefault(nil)
	for i := 0; i < 15; i++ {
		c.Resolve("f", 0, 100)
	}
	sum := c.DiscrepancySummary()
	if sum.Total != 15 {
		t.Fatalf("expected 15 total, got %d", sum.Total)
	}
	if len(sum.RecentEntries) != 10 {
		t.Fatalf("expected 10 recent entries, got %d", len(sum.RecentEntries))
	}
}
