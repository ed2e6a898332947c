package validate

import (
	"strings"
	"testing"

	"github.com/driftstack/driftgate/internal/schema"
	"github.com/driftstack/driftgate/internal/stats"
)

func rawView(n int64) *stats.View {
	return stats.NewView(stats.DatasetStatistics{NumExamples: n}, stats.ViewOptions{})
}

func linkedView(n int64, kind schema.ComparatorKind, control *stats.View) *stats.View {
	opts := stats.ViewOptions{}
	switch kind {
	case schema.ComparatorDrift:
		opts.PreviousSpan = control
	case schema.ComparatorVersion:
		opts.PreviousVersion = control
	}
	return stats.NewView(stats.DatasetStatistics{NumExamples: n}, opts)
}

func TestUpdateWithinBoundsLeavesComparatorUntouched(t *testing.T) {
	cmp := &schema.RatioComparator{
		MinFractionThreshold: schema.Float64(0.5),
		MaxFractionThreshold: schema.Float64(1.0),
	}
	current := linkedView(2, schema.ComparatorDrift, rawView(4))

	descs := UpdateComparator(current, schema.ComparatorDrift, cmp)

	if len(descs) != 0 {
		t.Fatalf("expected no descriptions, got %d", len(descs))
	}
	if *cmp.MinFractionThreshold != 0.5 || *cmp.MaxFractionThreshold != 1.0 {
		t.Fatalf("in-range ratio must not mutate bounds, got min=%v max=%v",
			*cmp.MinFractionThreshold, *cmp.MaxFractionThreshold)
	}
}

func TestUpdateLoosensMinBound(t *testing.T) {
	cmp := &schema.RatioComparator{
		MinFractionThreshold: schema.Float64(1.0),
		MaxFractionThreshold: schema.Float64(1.0),
	}
	current := linkedView(2, schema.ComparatorDrift, rawView(4))

	descs := UpdateComparator(current, schema.ComparatorDrift, cmp)

	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	if descs[0].Reason != ReasonLowNumExamples {
		t.Fatalf("reason = %q, want %q", descs[0].Reason, ReasonLowNumExamples)
	}
	if !strings.Contains(descs[0].Short, "previous span") {
		t.Fatalf("short description should name the control relationship: %q", descs[0].Short)
	}
	if *cmp.MinFractionThreshold != 0.5 {
		t.Fatalf("min = %v, want 0.5", *cmp.MinFractionThreshold)
	}
	if *cmp.MaxFractionThreshold != 1.0 {
		t.Fatalf("max = %v, want 1.0 (untouched)", *cmp.MaxFractionThreshold)
	}
}

func TestUpdateLoosensMaxBound(t *testing.T) {
	cmp := &schema.RatioComparator{
		MinFractionThreshold: schema.Float64(1.0),
		MaxFractionThreshold: schema.Float64(1.0),
	}
	current := linkedView(2, schema.ComparatorVersion, rawView(1))

	descs := UpdateComparator(current, schema.ComparatorVersion, cmp)

	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	if descs[0].Reason != ReasonHighNumExamples {
		t.Fatalf("reason = %q, want %q", descs[0].Reason, ReasonHighNumExamples)
	}
	if !strings.Contains(descs[0].Short, "previous version") {
		t.Fatalf("short description should name the control relationship: %q", descs[0].Short)
	}
	if *cmp.MinFractionThreshold != 1.0 {
		t.Fatalf("min = %v, want 1.0 (untouched)", *cmp.MinFractionThreshold)
	}
	if *cmp.MaxFractionThreshold != 2.0 {
		t.Fatalf("max = %v, want 2.0", *cmp.MaxFractionThreshold)
	}
}

func TestUpdateEmptyControlClearsMaxOnly(t *testing.T) {
	cmp := &schema.RatioComparator{
		MinFractionThreshold: schema.Float64(1.0),
		MaxFractionThreshold: schema.Float64(1.0),
	}
	current := linkedView(2, schema.ComparatorVersion, rawView(0))

	descs := UpdateComparator(current, schema.ComparatorVersion, cmp)

	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	if descs[0].Reason != ReasonHighNumExamples {
		t.Fatalf("reason = %q, want %q", descs[0].Reason, ReasonHighNumExamples)
	}
	if cmp.MaxFractionThreshold != nil {
		t.Fatalf("max should be cleared against an empty control set, got %v", *cmp.MaxFractionThreshold)
	}
	if cmp.MinFractionThreshold == nil || *cmp.MinFractionThreshold != 1.0 {
		t.Fatalf("min must survive an empty control set")
	}
}

func TestUpdateEmptyControlWithoutMaxIsNoOp(t *testing.T) {
	cmp := &schema.RatioComparator{MinFractionThreshold: schema.Float64(1.0)}
	current := linkedView(2, schema.ComparatorDrift, rawView(0))

	descs := UpdateComparator(current, schema.ComparatorDrift, cmp)

	if len(descs) != 0 {
		t.Fatalf("expected no descriptions, got %d", len(descs))
	}
	if *cmp.MinFractionThreshold != 1.0 {
		t.Fatalf("min = %v, want 1.0", *cmp.MinFractionThreshold)
	}
}

func TestUpdateWithoutControlLinkIsNoOp(t *testing.T) {
	cmp := &schema.RatioComparator{MaxFractionThreshold: schema.Float64(1.0)}
	current := rawView(2)

	descs := UpdateComparator(current, schema.ComparatorDrift, cmp)

	if len(descs) != 0 {
		t.Fatalf("expected no descriptions, got %d", len(descs))
	}
	if cmp.MaxFractionThreshold == nil || *cmp.MaxFractionThreshold != 1.0 {
		t.Fatalf("comparator must be left untouched without a baseline")
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	cmp := &schema.RatioComparator{
		MinFractionThreshold: schema.Float64(1.0),
		MaxFractionThreshold: schema.Float64(1.0),
	}
	current := linkedView(2, schema.ComparatorDrift, rawView(4))

	if descs := UpdateComparator(current, schema.ComparatorDrift, cmp); len(descs) != 1 {
		t.Fatalf("first pass: expected 1 description, got %d", len(descs))
	}

	descs := UpdateComparator(current, schema.ComparatorDrift, cmp)
	if len(descs) != 0 {
		t.Fatalf("second pass against unchanged state should be silent, got %d descriptions", len(descs))
	}
	if *cmp.MinFractionThreshold != 0.5 || *cmp.MaxFractionThreshold != 1.0 {
		t.Fatalf("second pass mutated bounds: min=%v max=%v",
			*cmp.MinFractionThreshold, *cmp.MaxFractionThreshold)
	}
}

func TestUpdateBoundsAreInclusive(t *testing.T) {
	cmp := &schema.RatioComparator{MaxFractionThreshold: schema.Float64(2.0)}
	current := linkedView(4, schema.ComparatorDrift, rawView(2))

	if descs := UpdateComparator(current, schema.ComparatorDrift, cmp); len(descs) != 0 {
		t.Fatalf("ratio equal to max must be in range, got %d descriptions", len(descs))
	}
	if *cmp.MaxFractionThreshold != 2.0 {
		t.Fatalf("max = %v, want 2.0", *cmp.MaxFractionThreshold)
	}
}

func TestUpdateNeverTightens(t *testing.T) {
	cmp := &schema.RatioComparator{
		MinFractionThreshold: schema.Float64(0.25),
		MaxFractionThreshold: schema.Float64(3.0),
	}
	current := linkedView(2, schema.ComparatorDrift, rawView(4))

	if descs := UpdateComparator(current, schema.ComparatorDrift, cmp); len(descs) != 0 {
		t.Fatalf("looser bounds must not be pulled in, got %d descriptions", len(descs))
	}
	if *cmp.MinFractionThreshold != 0.25 || *cmp.MaxFractionThreshold != 3.0 {
		t.Fatalf("bounds were tightened: min=%v max=%v",
			*cmp.MinFractionThreshold, *cmp.MaxFractionThreshold)
	}
}

func TestUpdateBothBoundsCanFireInOneCall(t *testing.T) {
	cmp := &schema.RatioComparator{
		MinFractionThreshold: schema.Float64(3.0),
		MaxFractionThreshold: schema.Float64(0.2),
	}
	current := linkedView(2, schema.ComparatorDrift, rawView(4))

	descs := UpdateComparator(current, schema.ComparatorDrift, cmp)

	if len(descs) != 2 {
		t.Fatalf("inconsistent bounds should both fire, got %d descriptions", len(descs))
	}
	if descs[0].Reason != ReasonLowNumExamples || descs[1].Reason != ReasonHighNumExamples {
		t.Fatalf("min description must precede max, got %q then %q", descs[0].Reason, descs[1].Reason)
	}
	if *cmp.MinFractionThreshold != 0.5 || *cmp.MaxFractionThreshold != 0.5 {
		t.Fatalf("both bounds should land on the observed ratio, got min=%v max=%v",
			*cmp.MinFractionThreshold, *cmp.MaxFractionThreshold)
	}
	if cmp.MinFractionThreshold == cmp.MaxFractionThreshold {
		t.Fatalf("bounds must not share storage")
	}
}

func TestUpdateNoBoundsIsNoOpTarget(t *testing.T) {
	cmp := &schema.RatioComparator{}
	current := linkedView(2, schema.ComparatorDrift, rawView(400))

	if descs := UpdateComparator(current, schema.ComparatorDrift, cmp); len(descs) != 0 {
		t.Fatalf("an unbounded comparator can never be violated, got %d descriptions", len(descs))
	}
	if cmp.MinFractionThreshold != nil || cmp.MaxFractionThreshold != nil {
		t.Fatalf("update must not invent bounds")
	}
}

func TestUpdateUsesWeightedCountsWhenViewIsByWeight(t *testing.T) {
	control := stats.NewView(
		stats.DatasetStatistics{NumExamples: 1, WeightedNumExamples: 10},
		stats.ViewOptions{ByWeight: true},
	)
	current := stats.NewView(
		stats.DatasetStatistics{NumExamples: 100, WeightedNumExamples: 2.5},
		stats.ViewOptions{ByWeight: true, PreviousSpan: control},
	)
	cmp := &schema.RatioComparator{MinFractionThreshold: schema.Float64(0.5)}

	descs := UpdateComparator(current, schema.ComparatorDrift, cmp)

	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	if *cmp.MinFractionThreshold != 0.25 {
		t.Fatalf("min = %v, want 0.25 (weighted ratio)", *cmp.MinFractionThreshold)
	}
}

func TestUpdateDescriptionsCarryThresholdContext(t *testing.T) {
	cmp := &schema.RatioComparator{MinFractionThreshold: schema.Float64(1.0)}
	current := linkedView(2, schema.ComparatorDrift, rawView(4))

	descs := UpdateComparator(current, schema.ComparatorDrift, cmp)

	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	long := descs[0].Long
	for _, want := range []string{"0.5", "below the threshold 1", "previous span"} {
		if !strings.Contains(long, want) {
			t.Fatalf("long description missing %q: %q", want, long)
		}
	}
}
