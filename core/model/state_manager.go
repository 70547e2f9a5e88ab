package model

import (
	"sync"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// StateManager tracks the fitted state of a model in a thread-safe manner.
// Exported fields are encoded with the model snapshot.
type StateManager struct {
	Fitted    bool
	NFeatures int
	NSamples  int

	mu     sync.RWMutex
	frozen bool
}

// NewStateManager creates an unfitted StateManager.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted marks the model as fitted.
func (s *StateManager) SetFitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
}

// Reset clears the fitted state. It does not unfreeze.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
}

// SetDimensions records the number of features and samples seen during fitting.
func (s *StateManager) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NFeatures = nFeatures
	s.NSamples = nSamples
}

// AddSamples increments the sample counter, used by incremental learners.
func (s *StateManager) AddSamples(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NSamples += n
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted returns a NotFittedError naming modelName and method when the model
// has not been fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// Freeze forbids further training. Freezing is not persisted.
func (s *StateManager) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// IsFrozen reports whether Freeze has been called.
func (s *StateManager) IsFrozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// RequireMutable returns an error when the model has been frozen.
func (s *StateManager) RequireMutable(modelName, method string) error {
	if s.IsFrozen() {
		return errors.NewModelError(method, modelName+" is frozen and can no longer be trained", nil)
	}
	return nil
}

// ModelState is the serializable part of a StateManager.
type ModelState struct {
	Fitted    bool `json:"fitted"`
	NFeatures int  `json:"n_features,omitempty"`
	NSamples  int  `json:"n_samples,omitempty"`
}

// GetState returns the current state.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{Fitted: s.Fitted, NFeatures: s.NFeatures, NSamples: s.NSamples}
}

// SetState restores a state captured by GetState.
func (s *StateManager) SetState(state ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = state.Fitted
	s.NFeatures = state.NFeatures
	s.NSamples = state.NSamples
}

// Stateful is implemented by models built on a StateManager.
type Stateful interface {
	State() *StateManager
}
