package chat

import (
	"sync"
	"time"

	"IMSync/logger"
	safe "IMSync/tools/safe"
)

// ConnConf tunes the session registry. Zero values get normalized.
type ConnConf struct {
	TTL        time.Duration    // heartbeat silence before a session is reaped
	SweepEvery time.Duration    // sweeper cadence
	Clock      func() time.Time // nil => time.Now
}

func (c *ConnConf) norm() {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = c.TTL / 4
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Session is the registry's record of one connection.
type Session struct {
	ConnID          string
	UserID          string
	ConnectedAt     time.Time
	LastHeartbeatAt time.Time
	Client          *Client
}

// ConnManager indexes live sessions by connection id and by user. The user
// index is what makes user-channel delivery cheap: one lookup returns every
// socket a user currently holds. A background sweeper reaps sessions whose
// heartbeat went silent; the reaped socket's read loop then unwinds the rest
// of the cleanup.
type ConnManager struct {
	mu     sync.RWMutex
	byConn map[string]*Session
	byUser map[string]map[string]*Session

	conf     ConnConf
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewConnManager(conf ConnConf) *ConnManager {
	conf.norm()
	m := &ConnManager{
		byConn: make(map[string]*Session),
		byUser: make(map[string]map[string]*Session),
		conf:   conf,
		stopCh: make(chan struct{}),
	}
	safe.Go(m.sweeper)
	return m
}

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Add registers the client under both indexes.
func (m *ConnManager) Add(c *Client) *Session {
	now := m.conf.Clock()
	s := &Session{
		ConnID:          c.ConnID,
		UserID:          c.UserID,
		ConnectedAt:     now,
		LastHeartbeatAt: now,
		Client:          c,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byConn[c.ConnID] = s
	byUser := m.byUser[c.UserID]
	if byUser == nil {
		byUser = make(map[string]*Session)
		m.byUser[c.UserID] = byUser
	}
	byUser[c.ConnID] = s
	return s
}

// Heartbeat refreshes the session's reap deadline.
func (m *ConnManager) Heartbeat(connID string) {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byConn[connID]; ok {
		s.LastHeartbeatAt = now
	}
}

// Remove drops the session from both indexes and returns it, nil when absent.
func (m *ConnManager) Remove(connID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byConn[connID]
	if !ok {
		return nil
	}
	delete(m.byConn, connID)
	if byUser := m.byUser[s.UserID]; byUser != nil {
		delete(byUser, connID)
		if len(byUser) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
	return s
}

// UserClients returns every live socket the user holds.
func (m *ConnManager) UserClients(userID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byUser := m.byUser[userID]
	out := make([]*Client, 0, len(byUser))
	for _, s := range byUser {
		out = append(out, s.Client)
	}
	return out
}

// AllClients returns every live socket on this gateway.
func (m *ConnManager) AllClients() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.byConn))
	for _, s := range m.byConn {
		out = append(out, s.Client)
	}
	return out
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}

func (m *ConnManager) sweeper() {
	tick := time.NewTicker(m.conf.SweepEvery)
	defer tick.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-tick.C:
			m.SweepOnce(m.conf.Clock())
		}
	}
}

// SweepOnce closes sessions silent for longer than TTL. Exported so tests can
// drive time directly. Closing the socket is enough; the read loop errors out
// and performs the full disconnect path.
func (m *ConnManager) SweepOnce(now time.Time) {
	var expired []*Session

	m.mu.RLock()
	for _, s := range m.byConn {
		if now.Sub(s.LastHeartbeatAt) >= m.conf.TTL {
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		logger.Infof("[gateway] reaping silent session conn=%s user=%s", s.ConnID, s.UserID)
		s.Client.Close()
	}
}
