package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/driftstack/driftgate/pkg/client"
)

func main() {
	var (
		baseURL  = flag.String("base-url", "http://localhost:8080", "driftgate base URL")
		dataset  = flag.String("dataset", "taxi_trips", "dataset to seed")
		spans    = flag.Int("spans", 12, "number of spans to seed")
		baseline = flag.Int64("baseline", 10000, "baseline example count per span")
		dropSpan = flag.Int("drop-span", 12, "span whose example count is halved (0 disables)")
	)
	flag.Parse()

	logger := log.New(log.Writer(), "statseed ", log.LstdFlags|log.Lmicroseconds)

	cl := client.New(*baseURL, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := cl.Health(ctx); err != nil {
		logger.Fatalf("driftgate unreachable at %s: %v", *baseURL, err)
	}

	if _, err := cl.DeclareComparator(ctx, *dataset, "drift", client.RatioComparator{
		MinFractionThreshold: client.Float64(0.9),
		MaxFractionThreshold: client.Float64(1.1),
	}); err != nil {
		logger.Fatalf("declare drift comparator: %v", err)
	}
	logger.Printf("declared drift comparator for %s (0.9..1.1)", *dataset)

	for span := 1; span <= *spans; span++ {
		count := wobble(*baseline, span)
		if span == *dropSpan {
			count /= 2
		}
		if _, err := cl.IngestSnapshot(ctx, client.Snapshot{
			Dataset: *dataset,
			Span:    int64(span),
			Version: 1,
			Stats:   client.DatasetStatistics{Name: *dataset, NumExamples: count},
		}); err != nil {
			logger.Fatalf("ingest span %d: %v", span, err)
		}
	}
	logger.Printf("seeded %d spans for %s", *spans, *dataset)

	result, err := cl.Validate(ctx, client.ValidationRequest{Dataset: *dataset})
	if err != nil {
		logger.Fatalf("validate: %v", err)
	}
	logger.Printf("latest span anomalous=%v", result.Anomalous)
	for _, comparison := range result.Comparisons {
		for _, desc := range comparison.Descriptions {
			logger.Printf("%s: %s", comparison.Kind, desc.Long)
		}
	}
}

// wobble applies a deterministic ±1% pattern so reruns seed identical data.
func wobble(baseline int64, span int) int64 {
	switch span % 3 {
	case 0:
		return baseline + baseline/100
	case 1:
		return baseline - baseline/100
	default:
		return baseline
	}
}
