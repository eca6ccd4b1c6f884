package main

import (
	"math/rand/v2"
	"testing"

	"uas-ingest/internal/pipeline"
)

// Every synthetic report must pass both gates.
func TestTrackReportsAreValid(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	v := pipeline.NewValidator(pipeline.Thresholds{})
	tracks := newTracks(4, 40.7128, -74.0060, rng)
	if len(tracks) != 4 {
		t.Fatalf("expected 4 tracks, got %d", len(tracks))
	}

	for _, tr := range tracks {
		for i := 0; i < 50; i++ {
			r := pipeline.ParseReport(tr.next("simulator"))
			if outcome, _ := v.Validate(r); outcome != pipeline.OutcomeValid {
				t.Fatalf("%s tick %d: outcome %s", tr.id, i, outcome)
			}
			if h := *r.Heading; h < 0 || h >= 360 {
				t.Fatalf("heading out of range: %v", h)
			}
		}
	}
}

func TestTrackIDsAreDistinct(t *testing.T) {
	tracks := newTracks(10, 0.5, 0.5, rand.New(rand.NewPCG(3, 4)))
	seen := map[string]bool{}
	for _, tr := range tracks {
		if seen[tr.id] {
			t.Fatalf("duplicate id %s", tr.id)
		}
		seen[tr.id] = true
	}
}
