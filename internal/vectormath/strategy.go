package vectormath

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var active atomic.Pointer[strategyHolder]

type strategyHolder struct {
	s Strategy
}

func init() {
	active.Store(&strategyHolder{s: defaultStrategy})
}

// Default returns the strategy selected at build time.
func Default() Strategy {
	return defaultStrategy
}

// Active returns the strategy currently used by SquaredDistance.
func Active() Strategy {
	return active.Load().s
}

// Use replaces the active strategy. A nil strategy restores the build default.
func Use(s Strategy) {
	if s == nil {
		s = defaultStrategy
	}
	active.Store(&strategyHolder{s: s})
}

// ByName resolves a strategy name from configuration. An empty name or
// "auto" selects the build default.
func ByName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return defaultStrategy, nil
	case "scalar":
		return Scalar{}, nil
	case "batched":
		return Batched{}, nil
	default:
		return nil, fmt.Errorf("unknown vector strategy %q", name)
	}
}
