package stats

import "github.com/driftstack/driftgate/internal/schema"

// DatasetStatistics is the pre-computed aggregate over one dataset slice.
// Producing it is the job of an upstream pipeline; this service only reads it.
type DatasetStatistics struct {
	Name                string  `json:"name,omitempty" yaml:"name,omitempty"`
	NumExamples         int64   `json:"num_examples" yaml:"num_examples"`
	WeightedNumExamples float64 `json:"weighted_num_examples,omitempty" yaml:"weighted_num_examples,omitempty"`
}

// View is a read-only lens over one dataset's statistics plus optional,
// non-owning links to the control snapshots comparisons run against. Views
// are immutable after construction and safe to share across goroutines.
type View struct {
	stats       DatasetStatistics
	byWeight    bool
	environment string

	previousSpan    *View
	previousVersion *View
	serving         *View
}

// ViewOptions configures a View. All fields are optional.
type ViewOptions struct {
	ByWeight        bool
	Environment     string
	PreviousSpan    *View
	PreviousVersion *View
	Serving         *View
}

// NewView wraps stats in an immutable View.
func NewView(stats DatasetStatistics, opts ViewOptions) *View {
	return &View{
		stats:           stats,
		byWeight:        opts.ByWeight,
		environment:     opts.Environment,
		previousSpan:    opts.PreviousSpan,
		previousVersion: opts.PreviousVersion,
		serving:         opts.Serving,
	}
}

// Name returns the dataset name carried by the underlying statistics.
func (v *View) Name() string { return v.stats.Name }

// ByWeight reports whether counts are read from the weighted field.
func (v *View) ByWeight() bool { return v.byWeight }

// Environment returns the deployment environment tag, empty when untagged.
func (v *View) Environment() string { return v.environment }

// ExampleCount returns the weighted example count when the view was built by
// weight, the raw count otherwise.
func (v *View) ExampleCount() float64 {
	if v.byWeight {
		return v.stats.WeightedNumExamples
	}
	return float64(v.stats.NumExamples)
}

// Statistics returns a copy of the wrapped aggregate.
func (v *View) Statistics() DatasetStatistics { return v.stats }

// PreviousSpan returns the prior-span control view, or nil.
func (v *View) PreviousSpan() *View { return v.previousSpan }

// PreviousVersion returns the prior-version control view, or nil.
func (v *View) PreviousVersion() *View { return v.previousVersion }

// Serving returns the serving-traffic control view, or nil. Example-count
// comparators never consult it; it rides along for callers that report on
// training/serving pairs.
func (v *View) Serving() *View { return v.serving }

// ControlView returns the control snapshot consulted for kind: the previous
// span for drift, the previous version for version. Nil when the link is
// absent or the kind is unknown.
func (v *View) ControlView(kind schema.ComparatorKind) *View {
	if v == nil {
		return nil
	}
	switch kind {
	case schema.ComparatorDrift:
		return v.previousSpan
	case schema.ComparatorVersion:
		return v.previousVersion
	default:
		return nil
	}
}
