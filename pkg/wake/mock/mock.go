// Package mock provides test doubles for the wake package.
//
// Use Spotter to script which frames count as keyword detections without a
// real classification model.
package mock

import (
	"sync"

	"github.com/wellbot-ai/wellbot/pkg/audio"
	"github.com/wellbot-ai/wellbot/pkg/wake"
)

// Spotter is a mock implementation of [wake.Spotter].
type Spotter struct {
	mu sync.Mutex

	// Detections is consumed one value per Classify call: true means "this
	// frame completes a keyword event". When exhausted, Classify returns
	// DefaultResult.
	Detections []bool

	// DefaultResult is returned once Detections is exhausted.
	DefaultResult bool

	// CallCountClassify records how many times Classify was called.
	CallCountClassify int

	// CallCountReset records how many times Reset was called.
	CallCountReset int
}

// Compile-time interface check.
var _ wake.Spotter = (*Spotter)(nil)

// Classify implements [wake.Spotter].
func (s *Spotter) Classify(_ audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClassify++
	if len(s.Detections) > 0 {
		r := s.Detections[0]
		s.Detections = s.Detections[1:]
		return r
	}
	return s.DefaultResult
}

// Reset implements [wake.Spotter].
func (s *Spotter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountReset++
}
