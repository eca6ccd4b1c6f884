package main

import (
	"fmt"
	"math"
	"math/rand/v2"
)

var models = []string{"DJI Mavic 3", "Skydio X10", "Autel EVO II", "Parrot Anafi"}

// track is one synthetic drone flying a circle around a center point.
type track struct {
	id        string
	model     string
	centerLat float64
	centerLon float64
	radius    float64 // degrees
	altitude  float64
	speed     float64
	phase     float64 // radians
	step      float64 // radians per tick
}

func newTracks(n int, centerLat, centerLon float64, rng *rand.Rand) []*track {
	out := make([]*track, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &track{
			id:        fmt.Sprintf("SIM-%03d", i+1),
			model:     models[i%len(models)],
			centerLat: centerLat + (rng.Float64()-0.5)*0.05,
			centerLon: centerLon + (rng.Float64()-0.5)*0.05,
			radius:    0.002 + rng.Float64()*0.01,
			altitude:  60 + rng.Float64()*60,
			speed:     5 + rng.Float64()*15,
			phase:     rng.Float64() * 2 * math.Pi,
			step:      0.02 + rng.Float64()*0.05,
		})
	}
	return out
}

// next advances the track one tick and returns the report for the new
// position.
func (t *track) next(source string) map[string]any {
	t.phase = math.Mod(t.phase+t.step, 2*math.Pi)
	lat := t.centerLat + t.radius*math.Sin(t.phase)
	lon := t.centerLon + t.radius*math.Cos(t.phase)
	// tangent to the circle, clockwise from north
	heading := math.Mod(360-t.phase*180/math.Pi+360, 360)

	return map[string]any{
		"source":   source,
		"objectId": t.id,
		"type":     "drone",
		"model":    t.model,
		"lat":      lat,
		"lon":      lon,
		"altitude": t.altitude,
		"speed":    t.speed,
		"heading":  heading,
	}
}
