package connection

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Factory builds the orchestrator for one user.
type Factory func(userID string) *Orchestrator

type managedOrchestrator struct {
	orchestrator *Orchestrator
	lastActivity time.Time
}

// Manager keeps one orchestrator per user and drops those idle for longer
// than the configured timeout.
type Manager struct {
	factory     Factory
	idleTimeout time.Duration
	log         logrus.FieldLogger
	now         func() time.Time

	mu            sync.Mutex
	orchestrators map[string]*managedOrchestrator
	closeChan     chan struct{}
}

func NewManager(factory Factory, idleTimeout time.Duration, log logrus.FieldLogger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	m := &Manager{
		factory:       factory,
		idleTimeout:   idleTimeout,
		log:           log.WithField("component", "connection_manager"),
		now:           time.Now,
		orchestrators: make(map[string]*managedOrchestrator),
		closeChan:     make(chan struct{}),
	}

	interval := 5 * time.Minute
	if idleTimeout < interval {
		interval = idleTimeout
	}
	go m.cleanupLoop(interval, m.closeChan)
	return m
}

// For returns the orchestrator for userID, creating it on first use.
func (m *Manager) For(userID string) *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.orchestrators[userID]
	if !ok {
		entry = &managedOrchestrator{orchestrator: m.factory(userID)}
		m.orchestrators[userID] = entry
	}
	entry.lastActivity = m.now()
	return entry.orchestrator
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orchestrators)
}

func (m *Manager) cleanupLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-done:
			return
		}
	}
}

func (m *Manager) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for userID, entry := range m.orchestrators {
		if idle := now.Sub(entry.lastActivity); idle > m.idleTimeout {
			m.log.WithFields(logrus.Fields{"user_id": userID, "idle": idle}).Debug("dropping idle orchestrator")
			delete(m.orchestrators, userID)
			removed++
		}
	}
	return removed
}

// Close stops the cleanup loop. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeChan == nil {
		return
	}
	close(m.closeChan)
	m.closeChan = nil
	m.orchestrators = make(map[string]*managedOrchestrator)
}
