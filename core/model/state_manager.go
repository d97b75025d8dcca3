package model

import (
	"sync"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
)

// StateManager manages the fitted state of a model in a thread-safe manner.
// Estimators hold one by composition instead of embedding a base type.
type StateManager struct {
	Fitted bool
	mu     sync.RWMutex

	// Dimensions seen during fitting.
	NFeatures int
	NSamples  int
	NClasses  int

	name string
}

// NewStateManager creates a StateManager for the named estimator. The name is
// used in NotFittedError messages.
func NewStateManager(name string) *StateManager {
	return &StateManager{name: name}
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

// Reset clears the fitted state and dimensions.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
	s.NClasses = 0
}

// SetDimensions records the shape of the training data.
func (s *StateManager) SetDimensions(nFeatures, nSamples, nClasses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NFeatures = nFeatures
	s.NSamples = nSamples
	s.NClasses = nClasses
}

// GetDimensions returns the shape recorded by SetDimensions.
func (s *StateManager) GetDimensions() (nFeatures, nSamples, nClasses int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples, s.NClasses
}

// RequireFitted returns a NotFittedError naming method if the model is not fitted.
func (s *StateManager) RequireFitted(method string) error {
	if !s.IsFitted() {
		return scierrors.NewNotFittedError(s.name, method)
	}
	return nil
}

// RequireFeatures checks a fitted model against the number of input columns.
func (s *StateManager) RequireFeatures(method string, nFeatures int) error {
	if err := s.RequireFitted(method); err != nil {
		return err
	}
	s.mu.RLock()
	want := s.NFeatures
	s.mu.RUnlock()
	if want != nFeatures {
		return scierrors.NewDimensionError(s.name+"."+method, want, nFeatures, 1)
	}
	return nil
}

// ModelState represents the complete state of a model for serialization.
type ModelState struct {
	Fitted    bool `json:"fitted"`
	NFeatures int  `json:"n_features,omitempty"`
	NSamples  int  `json:"n_samples,omitempty"`
	NClasses  int  `json:"n_classes,omitempty"`
}

// GetState returns the current state as a ModelState struct.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{
		Fitted:    s.Fitted,
		NFeatures: s.NFeatures,
		NSamples:  s.NSamples,
		NClasses:  s.NClasses,
	}
}

// SetState sets the state from a ModelState struct.
func (s *StateManager) SetState(state ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = state.Fitted
	s.NFeatures = state.NFeatures
	s.NSamples = state.NSamples
	s.NClasses = state.NClasses
}
