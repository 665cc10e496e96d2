package live

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gracefellowship/fellowship/internal/models"
)

// fakeClock drives Typist timers by hand.
type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (f *fakeTimer) Stop() bool {
	active := !f.stopped && !f.fired
	f.stopped = true
	return active
}

func (c *fakeClock) afterFunc(d time.Duration, fn func()) stopper {
	t := &fakeTimer{at: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) advance(d time.Duration) {
	c.now += d
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			t.fn()
		}
	}
}

type flagLog struct {
	mu    sync.Mutex
	flags []bool
}

func (l *flagLog) publish(v bool) {
	l.mu.Lock()
	l.flags = append(l.flags, v)
	l.mu.Unlock()
}

func (l *flagLog) last() (bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.flags) == 0 {
		return false, false
	}
	return l.flags[len(l.flags)-1], true
}

func newFakeTypist(clock *fakeClock, publish func(bool)) *Typist {
	t := NewTypist(publish)
	t.afterFunc = clock.afterFunc
	return t
}

func TestTypist_ExpiresAfterLastKeystroke(t *testing.T) {
	clock := &fakeClock{}
	log := &flagLog{}
	typist := newFakeTypist(clock, log.publish)

	typist.Keystroke()
	clock.advance(1500 * time.Millisecond)
	typist.Keystroke()
	typist.Keystroke()

	clock.advance(1900 * time.Millisecond)
	if !typist.Typing() {
		t.Fatal("should still be typing 1.9s after the last keystroke")
	}

	clock.advance(100 * time.Millisecond)
	if typist.Typing() {
		t.Fatal("should stop typing 2s after the last keystroke")
	}

	want := []bool{true, true, true, false}
	if !slices.Equal(log.flags, want) {
		t.Errorf("published %v, want %v", log.flags, want)
	}
}

func TestTypist_StopClearsImmediately(t *testing.T) {
	clock := &fakeClock{}
	log := &flagLog{}
	typist := newFakeTypist(clock, log.publish)

	typist.Keystroke()
	typist.Stop()
	clock.advance(5 * time.Second)

	if len(log.flags) != 2 || log.flags[1] {
		t.Errorf("published %v, want [true false]", log.flags)
	}

	// Stop while idle publishes nothing.
	typist.Stop()
	if len(log.flags) != 2 {
		t.Errorf("idle Stop published %v", log.flags)
	}
}

// Two connections for the same user. The first connection's flag follows
// its own keystrokes regardless of what the second one does.
func TestTypist_TwoTabs(t *testing.T) {
	clock := &fakeClock{}
	var mu sync.Mutex
	state := models.PresenceState{
		"1": {
			{Ref: "tab1", UserID: 1, DisplayName: "Ann"},
			{Ref: "tab2", UserID: 1, DisplayName: "Ann"},
		},
	}
	track := func(i int) func(bool) {
		return func(v bool) {
			mu.Lock()
			state["1"][i].IsTyping = v
			mu.Unlock()
		}
	}
	tab1 := newFakeTypist(clock, track(0))
	tab2 := newFakeTypist(clock, track(1))

	tab1.Keystroke()
	if got := TypingLine(state, 2); got != "Ann is typing..." {
		t.Fatalf("line = %q", got)
	}

	clock.advance(time.Second)
	tab2.Keystroke()
	clock.advance(500 * time.Millisecond)
	tab2.Stop()

	if !state["1"][0].IsTyping {
		t.Fatal("tab 2 stopping must not clear tab 1")
	}
	if got := TypingLine(state, 2); got != "Ann is typing..." {
		t.Fatalf("line = %q", got)
	}

	clock.advance(500 * time.Millisecond)
	if state["1"][0].IsTyping {
		t.Fatal("tab 1 should expire 2s after its last keystroke")
	}
	if got := TypingLine(state, 2); got != "" {
		t.Errorf("line = %q, want empty", got)
	}
}

func TestTypist_RealTimer(t *testing.T) {
	log := &flagLog{}
	typist := NewTypist(log.publish)
	typist.timeout = 20 * time.Millisecond

	typist.Keystroke()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := log.last(); ok && !v {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("typing flag never cleared")
}

func TestTypingLine(t *testing.T) {
	meta := func(id int64, name string, typing bool) models.PresenceMeta {
		return models.PresenceMeta{UserID: id, DisplayName: name, IsTyping: typing}
	}

	tests := []struct {
		name  string
		state models.PresenceState
		want  string
	}{
		{"nobody", models.PresenceState{"1": {meta(1, "Ann", false)}}, ""},
		{"self only", models.PresenceState{"9": {meta(9, "Me", true)}}, ""},
		{"one", models.PresenceState{"1": {meta(1, "Ann", true)}}, "Ann is typing..."},
		{"two sorted", models.PresenceState{
			"2": {meta(2, "Bob", true)},
			"1": {meta(1, "Ann", true)},
		}, "Ann and Bob are typing..."},
		{"many", models.PresenceState{
			"1": {meta(1, "Ann", true)},
			"2": {meta(2, "Bob", true)},
			"3": {meta(3, "Cat", true)},
			"4": {meta(4, "Dan", true)},
			"9": {meta(9, "Me", true)},
		}, "Ann and 3 others are typing..."},
		{"any tab counts", models.PresenceState{
			"1": {meta(1, "Ann", false), meta(1, "Ann", true)},
		}, "Ann is typing..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypingLine(tt.state, 9); got != tt.want {
				t.Errorf("TypingLine = %q, want %q", got, tt.want)
			}
		})
	}
}
