package ml

import (
	"fmt"
	"sort"
)

// ModelType names a forecasting backend
type ModelType string

const (
	// ModelProphet is a prophet style decomposition model
	ModelProphet ModelType = "prophet"
	// ModelETS is an exponential smoothing model with multiple seasonalities
	ModelETS ModelType = "ets"
)

// Backend is a forecaster along with the constraints it has on its inputs
type Backend struct {
	Forecaster Forecaster
	// RequiresSeasonality is set for models which can only fit seasonal data. Frames without
	// any usable season length are left untouched.
	RequiresSeasonality bool
}

// Backends maps model types to forecasting backends
type Backends map[ModelType]Backend

// Get returns the backend for the model type
func (b Backends) Get(mt ModelType) (Backend, error) {
	if len(b) == 0 {
		return Backend{}, ErrNoBackend
	}
	backend, exists := b[mt]
	if !exists || backend.Forecaster == nil {
		return Backend{}, fmt.Errorf("%q, %w", mt, ErrUnknownModelType)
	}
	return backend, nil
}

// Types returns the registered model types in sorted order
func (b Backends) Types() []ModelType {
	types := make([]ModelType, 0, len(b))
	for mt := range b {
		types = append(types, mt)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i] < types[j]
	})
	return types
}
