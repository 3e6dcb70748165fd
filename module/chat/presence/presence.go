package presence

import (
	"sync"
	"time"

	"IMSync/logger"
	"IMSync/module/chat/event"
	safe "IMSync/tools/safe"
)

// Mirror is the optional cross-node lookup backend (redis in production).
// Writes are best-effort: a mirror failure degrades to TTL-based expiry on the
// peer side, never to a caller-visible error.
type Mirror interface {
	Online(userID, gatewayID string, ttl time.Duration) error
	Offline(userID string) error
}

// Conf mirrors the connection-manager configuration idiom: zero values get
// normalized, the clock is injectable for tests.
type Conf struct {
	TTL        time.Duration    // silence window before a user flips offline
	SweepEvery time.Duration    // sweeper cadence
	GatewayID  string           // written into the mirror value
	Clock      func() time.Time // nil => time.Now
}

func (c *Conf) norm() {
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

type session struct {
	lastBeat time.Time
}

type userState struct {
	sessions map[string]*session // connID -> session
	lastSeen time.Time
	online   bool
}

// Tracker keeps per-user online state. A user is online while any of their
// sessions has a heartbeat younger than TTL; the last session going silent or
// disconnecting wins the offline transition. Every transition is pushed
// through the injected broadcaster.
type Tracker struct {
	mu    sync.Mutex
	users map[string]*userState

	conf   Conf
	bc     event.Broadcaster
	mirror Mirror // may be nil

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewTracker(conf Conf, bc event.Broadcaster, mirror Mirror) *Tracker {
	conf.norm()
	t := &Tracker{
		users:  make(map[string]*userState),
		conf:   conf,
		bc:     bc,
		mirror: mirror,
		stopCh: make(chan struct{}),
	}
	safe.Go(t.sweeper)
	return t
}

func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Heartbeat refreshes the session's TTL and flips the user online when needed.
// Called on connect and on every heartbeat frame.
func (t *Tracker) Heartbeat(userID, connID string) {
	now := t.conf.Clock()

	t.mu.Lock()
	u := t.users[userID]
	if u == nil {
		u = &userState{sessions: make(map[string]*session)}
		t.users[userID] = u
	}
	s := u.sessions[connID]
	if s == nil {
		s = &session{}
		u.sessions[connID] = s
	}
	s.lastBeat = now
	u.lastSeen = now
	wasOnline := u.online
	u.online = true
	t.mu.Unlock()

	t.mirrorOnline(userID)
	if !wasOnline {
		t.broadcast(userID, true, now)
	}
}

// Disconnect drops the session. When the last session goes away the user
// flips offline immediately; TTL expiry only covers silent connections.
func (t *Tracker) Disconnect(userID, connID string) {
	now := t.conf.Clock()

	t.mu.Lock()
	u := t.users[userID]
	if u == nil {
		t.mu.Unlock()
		return
	}
	delete(u.sessions, connID)
	flipped := false
	if len(u.sessions) == 0 && u.online {
		u.online = false
		u.lastSeen = now
		flipped = true
	}
	t.mu.Unlock()

	if flipped {
		t.mirrorOffline(userID)
		t.broadcast(userID, false, now)
	}
}

// IsOnline answers from local state only; cross-node callers go through the
// mirror.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.users[userID]
	return u != nil && u.online
}

// OnlineAmong filters ids down to the currently online ones, used to seed
// participant flags on join acks.
func (t *Tracker) OnlineAmong(ids []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, id := range ids {
		if u := t.users[id]; u != nil && u.online {
			out = append(out, id)
		}
	}
	return out
}

// LastSeen returns the last observed activity for the user in Unix ms, zero
// when the user was never seen.
func (t *Tracker) LastSeen(userID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.users[userID]
	if u == nil {
		return 0
	}
	return u.lastSeen.UnixMilli()
}

func (t *Tracker) sweeper() {
	tick := time.NewTicker(t.conf.SweepEvery)
	defer tick.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-tick.C:
			t.SweepOnce(t.conf.Clock())
		}
	}
}

// SweepOnce expires sessions whose heartbeat is older than TTL and flips users
// with no live session left. Exported so tests can drive time directly.
func (t *Tracker) SweepOnce(now time.Time) {
	var expired []string

	t.mu.Lock()
	for userID, u := range t.users {
		for connID, s := range u.sessions {
			if now.Sub(s.lastBeat) >= t.conf.TTL {
				delete(u.sessions, connID)
			}
		}
		if len(u.sessions) == 0 && u.online {
			u.online = false
			expired = append(expired, userID)
		}
	}
	t.mu.Unlock()

	for _, userID := range expired {
		t.mirrorOffline(userID)
		t.broadcast(userID, false, now)
	}
}

func (t *Tracker) broadcast(userID string, online bool, now time.Time) {
	t.bc.PresenceUpdate(event.PresenceUpdate{
		UserID:   userID,
		IsOnline: online,
		LastSeen: now.UnixMilli(),
	})
}

func (t *Tracker) mirrorOnline(userID string) {
	if t.mirror == nil {
		return
	}
	if err := t.mirror.Online(userID, t.conf.GatewayID, t.conf.TTL); err != nil {
		logger.Warnf("[presence] mirror online failed user=%s err=%v", userID, err)
	}
}

func (t *Tracker) mirrorOffline(userID string) {
	if t.mirror == nil {
		return
	}
	if err := t.mirror.Offline(userID); err != nil {
		logger.Warnf("[presence] mirror offline failed user=%s err=%v", userID, err)
	}
}
