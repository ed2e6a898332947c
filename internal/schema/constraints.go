package schema

import "fmt"

// ComparatorKind selects which control snapshot an example-count bound is
// checked against.
type ComparatorKind string

const (
	ComparatorDrift   ComparatorKind = "drift"
	ComparatorVersion ComparatorKind = "version"
)

// Kinds lists the comparator kinds in evaluation order.
func Kinds() []ComparatorKind {
	return []ComparatorKind{ComparatorDrift, ComparatorVersion}
}

// ParseKind converts an external string into a ComparatorKind.
func ParseKind(s string) (ComparatorKind, error) {
	switch ComparatorKind(s) {
	case ComparatorDrift:
		return ComparatorDrift, nil
	case ComparatorVersion:
		return ComparatorVersion, nil
	default:
		return "", fmt.Errorf("unknown comparator kind %q", s)
	}
}

// RatioComparator bounds the ratio current/control between two independently
// optional thresholds. An absent threshold imposes no bound; presence is
// distinct from a zero value.
type RatioComparator struct {
	MinFractionThreshold *float64 `json:"min_fraction_threshold,omitempty" yaml:"min_fraction_threshold,omitempty"`
	MaxFractionThreshold *float64 `json:"max_fraction_threshold,omitempty" yaml:"max_fraction_threshold,omitempty"`
}

// Clone returns a deep copy so callers can mutate without touching the
// original.
func (c *RatioComparator) Clone() *RatioComparator {
	if c == nil {
		return nil
	}
	out := &RatioComparator{}
	if c.MinFractionThreshold != nil {
		v := *c.MinFractionThreshold
		out.MinFractionThreshold = &v
	}
	if c.MaxFractionThreshold != nil {
		v := *c.MaxFractionThreshold
		out.MaxFractionThreshold = &v
	}
	return out
}

// Validate rejects negative thresholds.
func (c *RatioComparator) Validate() error {
	if c == nil {
		return nil
	}
	if c.MinFractionThreshold != nil && *c.MinFractionThreshold < 0 {
		return fmt.Errorf("min_fraction_threshold must be non-negative, got %v", *c.MinFractionThreshold)
	}
	if c.MaxFractionThreshold != nil && *c.MaxFractionThreshold < 0 {
		return fmt.Errorf("max_fraction_threshold must be non-negative, got %v", *c.MaxFractionThreshold)
	}
	return nil
}

// DatasetConstraints holds the dataset-level example-count bounds for one
// dataset: at most one drift comparator and one version comparator.
type DatasetConstraints struct {
	DriftComparator   *RatioComparator `json:"num_examples_drift_comparator,omitempty" yaml:"num_examples_drift_comparator,omitempty"`
	VersionComparator *RatioComparator `json:"num_examples_version_comparator,omitempty" yaml:"num_examples_version_comparator,omitempty"`
}

// HasComparator reports whether the slot for kind is populated. It never
// creates the slot.
func (dc *DatasetConstraints) HasComparator(kind ComparatorKind) bool {
	return dc.Comparator(kind) != nil
}

// Comparator returns the slot for kind, or nil when absent or the kind is
// unknown.
func (dc *DatasetConstraints) Comparator(kind ComparatorKind) *RatioComparator {
	if dc == nil {
		return nil
	}
	switch kind {
	case ComparatorDrift:
		return dc.DriftComparator
	case ComparatorVersion:
		return dc.VersionComparator
	default:
		return nil
	}
}

// EnsureComparator returns the slot for kind, creating an empty comparator
// first when the slot is unset. Unknown kinds return nil.
func (dc *DatasetConstraints) EnsureComparator(kind ComparatorKind) *RatioComparator {
	switch kind {
	case ComparatorDrift:
		if dc.DriftComparator == nil {
			dc.DriftComparator = &RatioComparator{}
		}
		return dc.DriftComparator
	case ComparatorVersion:
		if dc.VersionComparator == nil {
			dc.VersionComparator = &RatioComparator{}
		}
		return dc.VersionComparator
	default:
		return nil
	}
}

// Clone returns a deep copy of the constraints.
func (dc *DatasetConstraints) Clone() *DatasetConstraints {
	if dc == nil {
		return nil
	}
	return &DatasetConstraints{
		DriftComparator:   dc.DriftComparator.Clone(),
		VersionComparator: dc.VersionComparator.Clone(),
	}
}

// Validate rejects constraints whose populated comparators carry negative
// thresholds.
func (dc *DatasetConstraints) Validate() error {
	if dc == nil {
		return nil
	}
	if err := dc.DriftComparator.Validate(); err != nil {
		return fmt.Errorf("drift comparator: %w", err)
	}
	if err := dc.VersionComparator.Validate(); err != nil {
		return fmt.Errorf("version comparator: %w", err)
	}
	return nil
}

// Float64 returns a pointer to v, for building optional thresholds.
func Float64(v float64) *float64 {
	return &v
}
