// Package client provides a typed HTTP client for the driftgate API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DatasetStatistics carries the example counts for one dataset slice.
type DatasetStatistics struct {
	Name                string  `json:"name,omitempty"`
	NumExamples         int64   `json:"num_examples"`
	WeightedNumExamples float64 `json:"weighted_num_examples,omitempty"`
}

// RatioComparator bounds the current/control example-count ratio.
type RatioComparator struct {
	MinFractionThreshold *float64 `json:"min_fraction_threshold,omitempty"`
	MaxFractionThreshold *float64 `json:"max_fraction_threshold,omitempty"`
}

// DatasetConstraints is the declared constraint pack for one dataset.
type DatasetConstraints struct {
	DriftComparator   *RatioComparator `json:"num_examples_drift_comparator,omitempty"`
	VersionComparator *RatioComparator `json:"num_examples_version_comparator,omitempty"`
}

// InlineControls supplies control statistics directly instead of resolving
// them from stored history.
type InlineControls struct {
	PreviousSpan    *DatasetStatistics `json:"previous_span,omitempty"`
	PreviousVersion *DatasetStatistics `json:"previous_version,omitempty"`
	Serving         *DatasetStatistics `json:"serving,omitempty"`
}

// ValidationRequest describes one dataset validation.
type ValidationRequest struct {
	Dataset     string             `json:"dataset"`
	Mode        string             `json:"mode,omitempty"`
	ByWeight    bool               `json:"by_weight,omitempty"`
	Environment string             `json:"environment,omitempty"`
	Current     *DatasetStatistics `json:"current,omitempty"`
	Span        *int64             `json:"span,omitempty"`
	Version     *int64             `json:"version,omitempty"`
	Controls    *InlineControls    `json:"controls,omitempty"`
}

// Description explains one threshold adjustment.
type Description struct {
	Reason string `json:"reason"`
	Short  string `json:"short_description"`
	Long   string `json:"description"`
}

// Comparison reports one comparator kind's evaluation.
type Comparison struct {
	Kind         string        `json:"kind"`
	ControlFound bool          `json:"control_found"`
	CurrentCount float64       `json:"current_count"`
	ControlCount *float64      `json:"control_count,omitempty"`
	Ratio        *float64      `json:"ratio,omitempty"`
	Descriptions []Description `json:"descriptions"`
}

// ValidationResult is the outcome of one validation pass.
type ValidationResult struct {
	ID          string              `json:"id"`
	Dataset     string              `json:"dataset"`
	Mode        string              `json:"mode"`
	ByWeight    bool                `json:"by_weight"`
	Anomalous   bool                `json:"anomalous"`
	Persisted   bool                `json:"persisted"`
	Comparisons []Comparison        `json:"comparisons"`
	Constraints *DatasetConstraints `json:"constraints"`
	CheckedAt   time.Time           `json:"checked_at"`
}

// Snapshot is one statistics record for a dataset slice.
type Snapshot struct {
	ID          string            `json:"id,omitempty"`
	Dataset     string            `json:"dataset"`
	Span        int64             `json:"span"`
	Version     int64             `json:"version"`
	Environment string            `json:"environment,omitempty"`
	Stats       DatasetStatistics `json:"stats"`
	CreatedAt   time.Time         `json:"created_at"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("driftgate: %s (%d %s)", e.Message, e.Status, e.Code)
}

// Float64 returns a pointer to v for building comparator bounds.
func Float64(v float64) *float64 { return &v }

// Client calls a driftgate server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a client for the given base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Validate runs the dataset's comparators against the requested snapshot.
func (c *Client) Validate(ctx context.Context, req ValidationRequest) (*ValidationResult, error) {
	var result ValidationResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/validate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IngestSnapshot stores one statistics snapshot and returns it with its
// assigned identity.
func (c *Client) IngestSnapshot(ctx context.Context, snap Snapshot) (*Snapshot, error) {
	var stored Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/v1/snapshots", snap, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Snapshots lists recent snapshots for a dataset, newest first. limit <= 0
// returns all of them.
func (c *Client) Snapshots(ctx context.Context, dataset string, limit int) ([]Snapshot, error) {
	endpoint := "/api/v1/snapshots/" + url.PathEscape(dataset)
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var listing struct {
		Snapshots []Snapshot `json:"snapshots"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &listing); err != nil {
		return nil, err
	}
	return listing.Snapshots, nil
}

// Datasets lists datasets with declared constraint packs.
func (c *Client) Datasets(ctx context.Context) ([]string, error) {
	var listing struct {
		Datasets []string `json:"datasets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/schemas", nil, &listing); err != nil {
		return nil, err
	}
	return listing.Datasets, nil
}

// Constraints returns the declared constraint pack for a dataset.
func (c *Client) Constraints(ctx context.Context, dataset string) (*DatasetConstraints, error) {
	var resp struct {
		Constraints *DatasetConstraints `json:"constraints"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/schemas/"+url.PathEscape(dataset), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Constraints, nil
}

// DeclareComparator creates or overwrites one comparator's bounds for a
// dataset.
func (c *Client) DeclareComparator(ctx context.Context, dataset, kind string, cmp RatioComparator) (*DatasetConstraints, error) {
	endpoint := "/api/v1/schemas/" + url.PathEscape(dataset) + "/comparators/" + url.PathEscape(kind)
	var resp struct {
		Constraints *DatasetConstraints `json:"constraints"`
	}
	if err := c.do(ctx, http.MethodPut, endpoint, cmp, &resp); err != nil {
		return nil, err
	}
	return resp.Constraints, nil
}

// Health reports whether the server is reachable and healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("driftgate: base URL not configured")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
		var wire struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&wire); decodeErr == nil && wire.Error != "" {
			apiErr.Code = wire.Code
			apiErr.Message = wire.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
