package gateway

import (
	"sort"
	"strconv"
	"sync"

	"github.com/gracefellowship/fellowship/internal/models"
)

// presenceRegistry holds the ephemeral membership of every presence channel.
// Each connection owns exactly one meta per channel it joined, keyed by its
// session id; the snapshot groups metas by user.
type presenceRegistry struct {
	mu       sync.Mutex
	channels map[string]map[string]models.PresenceMeta // channel → sessionID → meta
}

func newPresenceRegistry() *presenceRegistry {
	return &presenceRegistry{channels: make(map[string]map[string]models.PresenceMeta)}
}

func (r *presenceRegistry) join(channel string, meta models.PresenceMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metas, ok := r.channels[channel]
	if !ok {
		metas = make(map[string]models.PresenceMeta)
		r.channels[channel] = metas
	}
	if existing, ok := metas[meta.Ref]; ok {
		meta.IsTyping = existing.IsTyping
		meta.OnlineAt = existing.OnlineAt
	}
	metas[meta.Ref] = meta
}

// track overwrites the typing flag of one connection's meta. It reports
// whether the connection is joined and whether the value changed.
func (r *presenceRegistry) track(channel, ref string, isTyping bool) (joined, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.channels[channel][ref]
	if !ok {
		return false, false
	}
	if meta.IsTyping == isTyping {
		return true, false
	}
	meta.IsTyping = isTyping
	r.channels[channel][ref] = meta
	return true, true
}

func (r *presenceRegistry) leave(channel, ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(channel, ref)
}

// leaveAll removes the connection from every channel and returns the
// channels it was in.
func (r *presenceRegistry) leaveAll(ref string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for channel := range r.channels {
		if r.removeLocked(channel, ref) {
			left = append(left, channel)
		}
	}
	return left
}

func (r *presenceRegistry) removeLocked(channel, ref string) bool {
	metas, ok := r.channels[channel]
	if !ok {
		return false
	}
	if _, ok := metas[ref]; !ok {
		return false
	}
	delete(metas, ref)
	if len(metas) == 0 {
		delete(r.channels, channel)
	}
	return true
}

// snapshot returns the channel state and the session ids of its members.
func (r *presenceRegistry) snapshot(channel string) (models.PresenceState, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metas := r.channels[channel]
	state := make(models.PresenceState, len(metas))
	refs := make([]string, 0, len(metas))
	for ref, meta := range metas {
		key := strconv.FormatInt(meta.UserID, 10)
		state[key] = append(state[key], meta)
		refs = append(refs, ref)
	}
	for _, list := range state {
		sort.Slice(list, func(i, j int) bool { return list[i].Ref < list[j].Ref })
	}
	return state, refs
}
