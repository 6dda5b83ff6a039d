package common

import (
	"fmt"
	"sync"

	coreerrors "arthcore/core/errors"
)

// ErrModulePaused is returned by Guard when the named switch is engaged.
var ErrModulePaused = coreerrors.ErrPaused

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%s: %w", module, ErrModulePaused)
	}
	return nil
}

// Switches is an in-memory PauseView keyed by module or operation name.
type Switches struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewSwitches() *Switches {
	return &Switches{paused: make(map[string]bool)}
}

func (s *Switches) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

// Set engages or releases the switch for module.
func (s *Switches) Set(module string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.paused[module] = true
		return
	}
	delete(s.paused, module)
}

// Toggle flips the switch for module and returns the new state.
func (s *Switches) Toggle(module string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := !s.paused[module]
	if next {
		s.paused[module] = true
	} else {
		delete(s.paused, module)
	}
	return next
}
