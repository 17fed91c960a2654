package providers

import (
	"context"

	"covidtrend/internal/model"
)

// Provider fetches one full snapshot of the dataset.
type Provider interface {
	Name() string
	FetchObservations(ctx context.Context) ([]model.Observation, error)
}
