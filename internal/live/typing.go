package live

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gracefellowship/fellowship/internal/models"
)

// TypingTimeout is how long after the last keystroke a user stops being
// shown as typing.
const TypingTimeout = 2 * time.Second

type stopper interface{ Stop() bool }

// Typist turns keystrokes into typing flags for one connection. It
// publishes true on every keystroke and false once no keystroke has
// arrived for TypingTimeout.
type Typist struct {
	publish   func(isTyping bool)
	timeout   time.Duration
	afterFunc func(d time.Duration, f func()) stopper

	mu     sync.Mutex
	typing bool
	timer  stopper
	gen    uint64
}

// NewTypist creates a Typist that reports through publish, typically
// PresenceChannel.Track.
func NewTypist(publish func(isTyping bool)) *Typist {
	return &Typist{
		publish: publish,
		timeout: TypingTimeout,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Keystroke publishes isTyping=true and re-arms the idle timer. Publishing
// happens under the lock so a late expiry cannot overtake it.
func (t *Typist) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing = true
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.afterFunc(t.timeout, func() { t.expire(gen) })
	t.publish(true)
}

func (t *Typist) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || !t.typing {
		return
	}
	t.typing = false
	t.timer = nil
	t.publish(false)
}

// Stop cancels the timer and clears the flag if it was set. Call it when
// the message is sent or the view is torn down.
func (t *Typist) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.typing {
		t.typing = false
		t.publish(false)
	}
}

// Typing reports the current local flag.
func (t *Typist) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// TypingLine describes who else is typing in a presence snapshot. A user
// counts as typing when any of their connections is.
func TypingLine(state models.PresenceState, selfID int64) string {
	self := strconv.FormatInt(selfID, 10)
	var names []string
	for key, metas := range state {
		if key == self || len(metas) == 0 || !state.Typing(key) {
			continue
		}
		names = append(names, metas[0].DisplayName)
	}
	slices.Sort(names)

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return names[0] + " and " + strconv.Itoa(len(names)-1) + " others are typing..."
	}
}
