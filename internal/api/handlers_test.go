package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/driftstack/driftgate/internal/registry"
	"github.com/driftstack/driftgate/internal/schema"
	"github.com/driftstack/driftgate/internal/services"
	"github.com/driftstack/driftgate/internal/stats"
	"github.com/driftstack/driftgate/internal/store"
)

const taxiPack = `
dataset: taxi_trips
constraints:
  num_examples_drift_comparator:
    min_fraction_threshold: 1.0
    max_fraction_threshold: 1.0
`

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "taxi_trips.yaml"), []byte(taxiPack), 0o644); err != nil {
		t.Fatalf("seed pack: %v", err)
	}
	reg, err := registry.New(dir, nil)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	snapshots, err := store.New(store.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { snapshots.Close() })

	svc := services.NewValidationService(nil, reg, snapshots, services.ModeCheck)
	engine := gin.New()
	registerRoutes(engine, newHandlers(svc, nil))
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func ingestSnapshot(t *testing.T, engine *gin.Engine, span, version, examples int64) {
	t.Helper()
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/snapshots", store.Snapshot{
		Dataset: "taxi_trips",
		Span:    span,
		Version: version,
		Stats:   stats.DatasetStatistics{NumExamples: examples},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest span %d: status %d body %s", span, rec.Code, rec.Body.String())
	}
}

func TestValidateEndpoint(t *testing.T) {
	engine := newTestRouter(t)
	ingestSnapshot(t, engine, 1, 1, 4)
	ingestSnapshot(t, engine, 2, 1, 2)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/validate", services.ValidationRequest{
		Dataset: "taxi_trips",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var result services.ValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Anomalous {
		t.Fatalf("halved example count should be anomalous: %+v", result)
	}
	if len(result.Comparisons) != 1 || result.Comparisons[0].Kind != schema.ComparatorDrift {
		t.Fatalf("unexpected comparisons: %+v", result.Comparisons)
	}
}

func TestValidateEndpointRejectsMissingDataset(t *testing.T) {
	engine := newTestRouter(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/validate", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Fatalf("unexpected code: %s", resp.Code)
	}
}

func TestValidateEndpointUnknownDataset(t *testing.T) {
	engine := newTestRouter(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/validate", services.ValidationRequest{
		Dataset: "no_such_dataset",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestIngestAndListSnapshots(t *testing.T) {
	engine := newTestRouter(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/snapshots", store.Snapshot{
		Dataset: "taxi_trips",
		Span:    7,
		Version: 1,
		Stats:   stats.DatasetStatistics{NumExamples: 100},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var stored store.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if stored.ID == "" || stored.CreatedAt.IsZero() {
		t.Fatalf("identity not assigned: %+v", stored)
	}

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/snapshots/taxi_trips", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var listing struct {
		Dataset   string           `json:"dataset"`
		Snapshots []store.Snapshot `json:"snapshots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Snapshots) != 1 || listing.Snapshots[0].Span != 7 {
		t.Fatalf("unexpected listing: %+v", listing)
	}
}

func TestListSnapshotsRejectsBadLimit(t *testing.T) {
	engine := newTestRouter(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/snapshots/taxi_trips?limit=nope", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestSchemaEndpoints(t *testing.T) {
	engine := newTestRouter(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/schemas", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var datasets struct {
		Datasets []string `json:"datasets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &datasets); err != nil {
		t.Fatalf("decode datasets: %v", err)
	}
	if len(datasets.Datasets) != 1 || datasets.Datasets[0] != "taxi_trips" {
		t.Fatalf("unexpected datasets: %+v", datasets.Datasets)
	}

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/schemas/taxi_trips", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var schemaResp schemaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &schemaResp); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if !schemaResp.Constraints.HasComparator(schema.ComparatorDrift) {
		t.Fatalf("drift comparator missing: %+v", schemaResp.Constraints)
	}

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/schemas/no_such_dataset", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestDeclareComparatorEndpoint(t *testing.T) {
	engine := newTestRouter(t)

	rec := doJSON(t, engine, http.MethodPut, "/api/v1/schemas/taxi_trips/comparators/version", schema.RatioComparator{
		MinFractionThreshold: schema.Float64(1),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var schemaResp schemaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &schemaResp); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if !schemaResp.Constraints.HasComparator(schema.ComparatorVersion) {
		t.Fatalf("version comparator missing: %+v", schemaResp.Constraints)
	}

	rec = doJSON(t, engine, http.MethodPut, "/api/v1/schemas/taxi_trips/comparators/bogus", schema.RatioComparator{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	engine := newTestRouter(t)

	rec := doJSON(t, engine, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	rec = doJSON(t, engine, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status %d", rec.Code)
	}
}
