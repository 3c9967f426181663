package handlers

import (
	"sync"
	"time"

	"bitzomax/internal/playback"
)

// liveSession is a playback session opened over HTTP.
type liveSession struct {
	id      string
	session *playback.Session

	mu       sync.Mutex
	element  *remoteElement
	lastSeen time.Time
}

func (ls *liveSession) currentElement() *remoteElement {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.element
}

func (ls *liveSession) setElement(el *remoteElement) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.element = el
}

func (ls *liveSession) touch(now time.Time) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.lastSeen = now
}

func (ls *liveSession) idleSince(t time.Time) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.lastSeen.Before(t)
}

// sessionRegistry tracks open sessions by id.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*liveSession)}
}

func (r *sessionRegistry) add(ls *liveSession) {
	ls.touch(time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[ls.id] = ls
}

// get returns a session and marks it as recently used.
func (r *sessionRegistry) get(id string) (*liveSession, bool) {
	r.mu.Lock()
	ls, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		ls.touch(time.Now())
	}
	return ls, ok
}

func (r *sessionRegistry) remove(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.sessions[id]
	delete(r.sessions, id)
	return ls, ok
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// expire removes and returns the sessions not used since cutoff.
func (r *sessionRegistry) expire(cutoff time.Time) []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*liveSession
	for id, ls := range r.sessions {
		if ls.idleSince(cutoff) {
			expired = append(expired, ls)
			delete(r.sessions, id)
		}
	}
	return expired
}

// drain removes and returns every session.
func (r *sessionRegistry) drain() []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*liveSession, 0, len(r.sessions))
	for _, ls := range r.sessions {
		all = append(all, ls)
	}
	clear(r.sessions)
	return all
}

func (r *sessionRegistry) snapshot() []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*liveSession, 0, len(r.sessions))
	for _, ls := range r.sessions {
		all = append(all, ls)
	}
	return all
}

// setSubscribed forwards a subscription change to every open session.
func (r *sessionRegistry) setSubscribed(subscribed bool) {
	for _, ls := range r.snapshot() {
		ls.session.SetSubscribed(subscribed)
	}
}
