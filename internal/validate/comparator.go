package validate

import (
	"fmt"
	"strconv"

	"github.com/driftstack/driftgate/internal/schema"
	"github.com/driftstack/driftgate/internal/stats"
)

// Reason identifies which bound fired, stable across wording changes.
type Reason string

const (
	ReasonLowNumExamples  Reason = "COMPARATOR_LOW_NUM_EXAMPLES"
	ReasonHighNumExamples Reason = "COMPARATOR_HIGH_NUM_EXAMPLES"
)

// Description documents one threshold adjustment in human-readable form.
type Description struct {
	Reason Reason `json:"reason"`
	Short  string `json:"short_description"`
	Long   string `json:"description"`
}

// UpdateComparator checks the ratio of current to control example counts
// against cmp's bounds and loosens any violated bound to exactly the observed
// ratio, mutating cmp in place and returning one Description per adjustment
// (min first, then max). Comparisons are inclusive, so a ratio equal to a
// bound changes nothing. Bounds are only ever loosened, never tightened.
//
// Without a control view for kind the call is a no-op. With an empty control
// set the ratio is unbounded above, so a set max threshold is cleared rather
// than assigned; the min threshold is never touched in that case.
func UpdateComparator(current *stats.View, kind schema.ComparatorKind, cmp *schema.RatioComparator) []Description {
	control := current.ControlView(kind)
	if control == nil {
		return nil
	}

	var out []Description

	controlCount := control.ExampleCount()
	currentCount := current.ExampleCount()

	if controlCount == 0 {
		if cmp.MaxFractionThreshold == nil {
			return nil
		}
		old := *cmp.MaxFractionThreshold
		cmp.MaxFractionThreshold = nil
		out = append(out, Description{
			Reason: ReasonHighNumExamples,
			Short:  fmt.Sprintf("High num examples in current dataset versus the %s.", kindLabel(kind)),
			Long: fmt.Sprintf(
				"The %s contains no examples, so the ratio of num examples is unbounded above the threshold %s. The max fraction threshold was removed.",
				kindLabel(kind), formatNum(old)),
		})
		return out
	}

	ratio := currentCount / controlCount

	if cmp.MinFractionThreshold != nil && ratio < *cmp.MinFractionThreshold {
		old := *cmp.MinFractionThreshold
		v := ratio
		cmp.MinFractionThreshold = &v
		out = append(out, Description{
			Reason: ReasonLowNumExamples,
			Short:  fmt.Sprintf("Low num examples in current dataset versus the %s.", kindLabel(kind)),
			Long: fmt.Sprintf(
				"The ratio of num examples in the current dataset (%s) versus the %s (%s) is %s (up to six significant digits), below the threshold %s. The min fraction threshold was adjusted down to %s.",
				formatNum(currentCount), kindLabel(kind), formatNum(controlCount),
				formatNum(ratio), formatNum(old), formatNum(ratio)),
		})
	}

	if cmp.MaxFractionThreshold != nil && ratio > *cmp.MaxFractionThreshold {
		old := *cmp.MaxFractionThreshold
		v := ratio
		cmp.MaxFractionThreshold = &v
		out = append(out, Description{
			Reason: ReasonHighNumExamples,
			Short:  fmt.Sprintf("High num examples in current dataset versus the %s.", kindLabel(kind)),
			Long: fmt.Sprintf(
				"The ratio of num examples in the current dataset (%s) versus the %s (%s) is %s (up to six significant digits), above the threshold %s. The max fraction threshold was adjusted up to %s.",
				formatNum(currentCount), kindLabel(kind), formatNum(controlCount),
				formatNum(ratio), formatNum(old), formatNum(ratio)),
		})
	}

	return out
}

// kindLabel renders the control relationship the way operators talk about it.
func kindLabel(kind schema.ComparatorKind) string {
	switch kind {
	case schema.ComparatorDrift:
		return "previous span"
	case schema.ComparatorVersion:
		return "previous version"
	default:
		return string(kind)
	}
}

// formatNum renders counts, ratios and thresholds with up to six significant
// digits.
func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
