package meteo

import "context"

// Gateway fetches the current observation for a coordinate pair.
type Gateway interface {
	Fetch(ctx context.Context, lat, lon float64) (Observation, error)
}

// Observation is a single upstream reading, not yet bound to a stored location.
type Observation struct {
	Temperature     float64
	Humidity        int
	AQI             int
	RainProbability int
	RainMM          float64
}
