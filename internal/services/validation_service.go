package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftstack/driftgate/internal/metrics"
	"github.com/driftstack/driftgate/internal/registry"
	"github.com/driftstack/driftgate/internal/schema"
	"github.com/driftstack/driftgate/internal/stats"
	"github.com/driftstack/driftgate/internal/store"
	"github.com/driftstack/driftgate/internal/utils"
	"github.com/driftstack/driftgate/internal/validate"
)

// ErrInvalidRequest marks caller mistakes so transports can map them to 4xx.
var ErrInvalidRequest = errors.New("invalid request")

// Mode selects what happens to widened bounds after validation.
type Mode string

const (
	// ModeCheck runs comparators against a clone; stored packs stay as
	// declared.
	ModeCheck Mode = "check"
	// ModeCalibrate persists widened packs back to the registry.
	ModeCalibrate Mode = "calibrate"
)

// ParseMode converts an external string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCheck:
		return ModeCheck, nil
	case ModeCalibrate:
		return ModeCalibrate, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
	}
}

// InlineControls carries caller-supplied control statistics that bypass
// store resolution.
type InlineControls struct {
	PreviousSpan    *stats.DatasetStatistics `json:"previous_span,omitempty"`
	PreviousVersion *stats.DatasetStatistics `json:"previous_version,omitempty"`
	Serving         *stats.DatasetStatistics `json:"serving,omitempty"`
}

// ValidationRequest describes one dataset validation. Current statistics come
// inline or from the snapshot store (by span, or the latest); control
// statistics come inline or are resolved from stored history.
type ValidationRequest struct {
	Dataset     string                   `json:"dataset"`
	Mode        string                   `json:"mode,omitempty"`
	ByWeight    bool                     `json:"by_weight,omitempty"`
	Environment string                   `json:"environment,omitempty"`
	Current     *stats.DatasetStatistics `json:"current,omitempty"`
	Span        *int64                   `json:"span,omitempty"`
	Version     *int64                   `json:"version,omitempty"`
	Controls    *InlineControls          `json:"controls,omitempty"`
}

// ComparisonResult reports one comparator kind's evaluation.
type ComparisonResult struct {
	Kind         schema.ComparatorKind  `json:"kind"`
	ControlFound bool                   `json:"control_found"`
	CurrentCount float64                `json:"current_count"`
	ControlCount *float64               `json:"control_count,omitempty"`
	Ratio        *float64               `json:"ratio,omitempty"`
	Descriptions []validate.Description `json:"descriptions"`
}

// ValidationResult is the outcome of one validation pass.
type ValidationResult struct {
	ID          string                     `json:"id"`
	Dataset     string                     `json:"dataset"`
	Mode        Mode                       `json:"mode"`
	ByWeight    bool                       `json:"by_weight"`
	Anomalous   bool                       `json:"anomalous"`
	Persisted   bool                       `json:"persisted"`
	Comparisons []ComparisonResult         `json:"comparisons"`
	Constraints *schema.DatasetConstraints `json:"constraints"`
	CheckedAt   time.Time                  `json:"checked_at"`
}

// ValidationService runs example-count comparators for datasets against
// their declared constraint packs.
type ValidationService struct {
	logger      *slog.Logger
	registry    *registry.Registry
	snapshots   store.Store
	defaultMode Mode
	latencies   *utils.LatencyTracker
}

// NewValidationService constructs the service facade. snapshots may be nil
// for purely inline validation.
func NewValidationService(logger *slog.Logger, reg *registry.Registry, snapshots store.Store, defaultMode Mode) *ValidationService {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMode == "" {
		defaultMode = ModeCheck
	}
	return &ValidationService{
		logger:      logger,
		registry:    reg,
		snapshots:   snapshots,
		defaultMode: defaultMode,
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// ValidateSnapshot materializes the current and control views for the
// request, runs every declared comparator, and persists widened bounds when
// the mode is calibrate. Comparator slots are never created here.
func (s *ValidationService) ValidateSnapshot(ctx context.Context, req ValidationRequest) (*ValidationResult, error) {
	if req.Dataset == "" {
		return nil, fmt.Errorf("%w: dataset required", ErrInvalidRequest)
	}
	mode := s.defaultMode
	if req.Mode != "" {
		parsed, err := ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		mode = parsed
	}

	constraints, err := s.registry.Get(req.Dataset)
	if err != nil {
		return nil, utils.NewOpError("validate", req.Dataset, err)
	}

	start := time.Now()

	view, err := s.materializeView(ctx, req)
	if err != nil {
		metrics.ObserveValidation(time.Since(start), metrics.OutcomeError)
		return nil, utils.NewOpError("validate", req.Dataset, err)
	}

	result := &ValidationResult{
		ID:          uuid.NewString(),
		Dataset:     req.Dataset,
		Mode:        mode,
		ByWeight:    req.ByWeight,
		Comparisons: []ComparisonResult{},
		CheckedAt:   time.Now().UTC(),
	}

	for _, kind := range schema.Kinds() {
		if !constraints.HasComparator(kind) {
			continue
		}
		cmp := constraints.Comparator(kind)
		descs := validate.UpdateComparator(view, kind, cmp)
		if descs == nil {
			descs = []validate.Description{}
		}

		comparison := ComparisonResult{
			Kind:         kind,
			CurrentCount: view.ExampleCount(),
			Descriptions: descs,
		}
		if control := view.ControlView(kind); control != nil {
			comparison.ControlFound = true
			controlCount := control.ExampleCount()
			comparison.ControlCount = &controlCount
			if controlCount != 0 {
				ratio := view.ExampleCount() / controlCount
				comparison.Ratio = &ratio
			}
		}
		result.Comparisons = append(result.Comparisons, comparison)

		for _, d := range descs {
			bound := "max"
			if d.Reason == validate.ReasonLowNumExamples {
				bound = "min"
			}
			metrics.ObserveAdjustment(string(kind), bound)
			result.Anomalous = true
		}
	}

	result.Constraints = constraints

	if mode == ModeCalibrate && result.Anomalous {
		if err := s.registry.Put(req.Dataset, constraints); err != nil {
			metrics.ObserveValidation(time.Since(start), metrics.OutcomeError)
			s.logger.Error("calibration persist failed", slog.String("dataset", req.Dataset), slog.Any("error", err))
			return nil, utils.NewOpError("calibrate", req.Dataset, err)
		}
		result.Persisted = true
	}

	duration := time.Since(start)
	s.latencies.Observe(duration)
	outcome := metrics.OutcomeClean
	if result.Anomalous {
		outcome = metrics.OutcomeAnomalous
	}
	metrics.ObserveValidation(duration, outcome)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("validation latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	s.logger.Debug("validation finished",
		slog.String("dataset", req.Dataset),
		slog.String("mode", string(mode)),
		slog.Bool("anomalous", result.Anomalous),
		slog.Bool("persisted", result.Persisted))

	return result, nil
}

// IngestSnapshot stores one statistics snapshot, assigning an ID and
// timestamp when absent.
func (s *ValidationService) IngestSnapshot(ctx context.Context, snap store.Snapshot) (*store.Snapshot, error) {
	if s.snapshots == nil {
		return nil, fmt.Errorf("%w: snapshot store not configured", ErrInvalidRequest)
	}
	if snap.Dataset == "" {
		return nil, fmt.Errorf("%w: dataset required", ErrInvalidRequest)
	}
	if snap.Span < 0 || snap.Version < 0 {
		return nil, fmt.Errorf("%w: span and version must be non-negative", ErrInvalidRequest)
	}
	if snap.Stats.NumExamples < 0 || snap.Stats.WeightedNumExamples < 0 {
		return nil, fmt.Errorf("%w: example counts must be non-negative", ErrInvalidRequest)
	}

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if snap.Stats.Name == "" {
		snap.Stats.Name = snap.Dataset
	}

	if err := s.snapshots.Put(ctx, snap); err != nil {
		return nil, utils.NewOpError("ingest", snap.Dataset, err)
	}
	metrics.ObserveSnapshotIngested()

	s.logger.Debug("snapshot ingested",
		slog.String("dataset", snap.Dataset),
		slog.Int64("span", snap.Span),
		slog.Int64("version", snap.Version))
	return &snap, nil
}

// DeclareConstraint creates or overwrites one comparator's bounds for a
// dataset and persists the pack. Bounds left nil are cleared.
func (s *ValidationService) DeclareConstraint(ctx context.Context, dataset, kind string, min, max *float64) (*schema.DatasetConstraints, error) {
	if dataset == "" {
		return nil, fmt.Errorf("%w: dataset required", ErrInvalidRequest)
	}
	parsedKind, err := schema.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	constraints, err := s.registry.Get(dataset)
	if errors.Is(err, registry.ErrUnknownDataset) {
		constraints = &schema.DatasetConstraints{}
	} else if err != nil {
		return nil, utils.NewOpError("declare", dataset, err)
	}

	cmp := constraints.EnsureComparator(parsedKind)
	cmp.MinFractionThreshold = min
	cmp.MaxFractionThreshold = max
	if err := constraints.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if err := s.registry.Put(dataset, constraints); err != nil {
		return nil, utils.NewOpError("declare", dataset, err)
	}

	s.logger.Info("comparator declared",
		slog.String("dataset", dataset),
		slog.String("kind", kind))
	return constraints, nil
}

// Constraints returns the declared pack for a dataset.
func (s *ValidationService) Constraints(dataset string) (*schema.DatasetConstraints, error) {
	return s.registry.Get(dataset)
}

// Datasets lists datasets with declared constraint packs.
func (s *ValidationService) Datasets() []string {
	return s.registry.Datasets()
}

// Snapshots returns recent snapshots for a dataset, newest first.
func (s *ValidationService) Snapshots(ctx context.Context, dataset string, limit int) ([]store.Snapshot, error) {
	if s.snapshots == nil {
		return nil, fmt.Errorf("%w: snapshot store not configured", ErrInvalidRequest)
	}
	return s.snapshots.List(ctx, dataset, limit)
}

// LatencyP95 returns the current p95 validation latency.
func (s *ValidationService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// materializeView resolves the current statistics and control links for a
// request. Inline statistics win over store lookups; a missing control is a
// nil link, not an error.
func (s *ValidationService) materializeView(ctx context.Context, req ValidationRequest) (*stats.View, error) {
	current := req.Current
	span := req.Span
	version := req.Version
	environment := req.Environment

	if current == nil {
		if s.snapshots == nil {
			return nil, fmt.Errorf("%w: no inline statistics and no snapshot store", ErrInvalidRequest)
		}
		var (
			snap store.Snapshot
			err  error
		)
		if span != nil {
			snap, err = s.snapshots.BySpan(ctx, req.Dataset, *span)
		} else {
			snap, err = s.snapshots.Latest(ctx, req.Dataset)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve current snapshot: %w", err)
		}
		current = &snap.Stats
		span = &snap.Span
		if version == nil {
			version = &snap.Version
		}
		if environment == "" {
			environment = snap.Environment
		}
	}

	opts := stats.ViewOptions{ByWeight: req.ByWeight, Environment: environment}

	previousSpan, err := s.controlView(ctx, req, inlinePreviousSpan(req), func(ctx context.Context) (store.Snapshot, error) {
		if span == nil {
			return store.Snapshot{}, store.ErrNotFound
		}
		return s.snapshots.PreviousSpan(ctx, req.Dataset, *span)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve previous span: %w", err)
	}
	opts.PreviousSpan = previousSpan

	previousVersion, err := s.controlView(ctx, req, inlinePreviousVersion(req), func(ctx context.Context) (store.Snapshot, error) {
		if version == nil {
			return store.Snapshot{}, store.ErrNotFound
		}
		return s.snapshots.PreviousVersion(ctx, req.Dataset, *version)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve previous version: %w", err)
	}
	opts.PreviousVersion = previousVersion

	serving, err := s.controlView(ctx, req, inlineServing(req), func(ctx context.Context) (store.Snapshot, error) {
		return s.snapshots.Serving(ctx, req.Dataset)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve serving snapshot: %w", err)
	}
	opts.Serving = serving

	return stats.NewView(*current, opts), nil
}

// controlView builds one control link: inline statistics win, otherwise the
// store resolver runs, and ErrNotFound means no link.
func (s *ValidationService) controlView(ctx context.Context, req ValidationRequest, inline *stats.DatasetStatistics, resolve func(context.Context) (store.Snapshot, error)) (*stats.View, error) {
	if inline != nil {
		return stats.NewView(*inline, stats.ViewOptions{ByWeight: req.ByWeight}), nil
	}
	if s.snapshots == nil {
		return nil, nil
	}
	snap, err := resolve(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stats.NewView(snap.Stats, stats.ViewOptions{ByWeight: req.ByWeight, Environment: snap.Environment}), nil
}

func inlinePreviousSpan(req ValidationRequest) *stats.DatasetStatistics {
	if req.Controls == nil {
		return nil
	}
	return req.Controls.PreviousSpan
}

func inlinePreviousVersion(req ValidationRequest) *stats.DatasetStatistics {
	if req.Controls == nil {
		return nil
	}
	return req.Controls.PreviousVersion
}

func inlineServing(req ValidationRequest) *stats.DatasetStatistics {
	if req.Controls == nil {
		return nil
	}
	return req.Controls.Serving
}
