package shared

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestHaversineKmKnownDistances(t *testing.T) {
	assert.Equal(t, 0.0, HaversineKm(48.8566, 2.3522, 48.8566, 2.3522))

	// Paris to Lyon, roughly 392 km great-circle.
	assert.InDelta(t, 392, HaversineKm(48.8566, 2.3522, 45.7640, 4.8357), 5)

	// Notre-Dame to the Louvre, well under 2 km.
	short := HaversineKm(48.8530, 2.3499, 48.8606, 2.3376)
	assert.Greater(t, short, 0.5)
	assert.Less(t, short, 2.0)
}

func TestHaversineKmProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	latGen := gen.Float64Range(-85, 85)
	lonGen := gen.Float64Range(-180, 180)

	properties.Property("distance is symmetric", prop.ForAll(
		func(lat1, lon1, lat2, lon2 float64) bool {
			forward := HaversineKm(lat1, lon1, lat2, lon2)
			backward := HaversineKm(lat2, lon2, lat1, lon1)
			return math.Abs(forward-backward) < 1e-9
		},
		latGen, lonGen, latGen, lonGen,
	))

	properties.Property("distance is non-negative and bounded by half circumference", prop.ForAll(
		func(lat1, lon1, lat2, lon2 float64) bool {
			d := HaversineKm(lat1, lon1, lat2, lon2)
			return d >= 0 && d <= math.Pi*EarthRadiusKm+1
		},
		latGen, lonGen, latGen, lonGen,
	))

	properties.TestingRun(t)
}
