package discord

import (
	"sync"
	"time"
)

// readiness detects when the session state holds every guild announced by READY. The gateway
// has no event for it: READY lists the guilds as unavailable stubs and each arrives later in
// its own GUILD_CREATE.
type readiness struct {
	mu      sync.Mutex
	pending map[string]struct{}
	fired   bool
	// gen counts READYs; a timer or countdown of an earlier session never fires the current one.
	gen   uint64
	timer *time.Timer
	fire  func(timedOut bool)
}

func newReadiness(fire func(timedOut bool)) *readiness {
	return &readiness{fire: fire, fired: true}
}

// expect starts tracking a new READY. fire runs once, when every guild has arrived or
// timeout elapses, whichever is first. A later READY (a new gateway session) starts over.
func (r *readiness) expect(guildIDs []string, timeout time.Duration) {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
	gen := r.gen
	r.fired = false
	r.pending = make(map[string]struct{}, len(guildIDs))
	for _, id := range guildIDs {
		r.pending[id] = struct{}{}
	}
	empty := len(r.pending) == 0
	if !empty {
		r.timer = time.AfterFunc(timeout, func() { r.trigger(gen, true) })
	}
	r.mu.Unlock()

	if empty {
		r.trigger(gen, false)
	}
}

// guildAvailable marks a guild as cached. It reports whether the cache had already been
// announced as populated, in which case the guild joined or recovered afterwards.
func (r *readiness) guildAvailable(id string) bool {
	r.mu.Lock()
	if r.fired {
		r.mu.Unlock()
		return true
	}
	delete(r.pending, id)
	empty := len(r.pending) == 0
	gen := r.gen
	r.mu.Unlock()

	if empty {
		r.trigger(gen, false)
	}
	return false
}

// trigger fires once per generation and ignores every generation but the current one.
func (r *readiness) trigger(gen uint64, timedOut bool) {
	r.mu.Lock()
	if r.fired || gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.fired = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	r.fire(timedOut)
}

func (r *readiness) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.fired = true
}
