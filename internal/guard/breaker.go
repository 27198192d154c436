package guard

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerManager owns one gobreaker.CircuitBreaker per named provider,
// adapted from the teacher's CircuitBreakerManager but trimmed to the
// fields this system actually reads (no fallback chains: the post source
// and oracle have no substitute provider).
type BreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// BreakerConfig configures one provider's circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// NewBreakerManager creates an empty breaker registry.
func NewBreakerManager() *BreakerManager {
	return &BreakerManager{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// Register installs a breaker for provider, replacing any existing one.
func (m *BreakerManager) Register(provider string, cfg BreakerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := gobreaker.Settings{
		Name:        provider,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
	}
	m.breakers[provider] = gobreaker.NewCircuitBreaker(settings)
}

// Execute runs fn through provider's breaker. An unregistered provider
// runs fn directly, unguarded.
func (m *BreakerManager) Execute(provider string, fn func() (interface{}, error)) (interface{}, error) {
	m.mu.RLock()
	breaker, ok := m.breakers[provider]
	m.mu.RUnlock()
	if !ok {
		return fn()
	}
	return breaker.Execute(fn)
}

// State reports the current breaker state for provider, or "unregistered".
func (m *BreakerManager) State(provider string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	breaker, ok := m.breakers[provider]
	if !ok {
		return "unregistered"
	}
	return breaker.State().String()
}

// ErrBreakerOpen is returned by gobreaker itself when a breaker is open;
// re-exported here so callers in this module don't import gobreaker
// directly just to compare errors.
var ErrBreakerOpen = gobreaker.ErrOpenState
