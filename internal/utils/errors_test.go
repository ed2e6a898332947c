package utils

import (
	"errors"
	"testing"
)

func TestOpErrorFormatsAndUnwraps(t *testing.T) {
	inner := errors.New("schema missing")
	err := NewOpError("validate", "taxi_trips", inner)

	if !errors.Is(err, inner) {
		t.Fatalf("OpError should unwrap to the inner error")
	}
	want := "validate: dataset taxi_trips: schema missing"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}

	bare := NewOpError("ingest", "", inner)
	if bare.Error() != "ingest: schema missing" {
		t.Fatalf("Error() without dataset = %q", bare.Error())
	}
}
