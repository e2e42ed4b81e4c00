// Package cursor owns the single notion of "current playback time" shared by
// every view of a case.
//
// A Cursor is driven by two kinds of input: callbacks from the media player
// (time advanced, duration known, ended) and requests from views (select a
// source, seek, toggle play/pause). Views never mutate the cursor's state
// directly; they observe it through Subscribe.
//
// A Cursor is not safe for concurrent use. All calls, including player
// callbacks, must come from one goroutine (see package session).
package cursor

import (
	"io"
	"math"
)

// State is the playback state of a Cursor.
type State int

const (
	// Idle: no source selected.
	Idle State = iota
	// Loading: source selected, duration not yet known.
	Loading
	// Paused: source ready and not playing.
	Paused
	// Playing: source ready and playing.
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	}
	return "unknown"
}

// Ready reports whether the source's duration is known.
func (s State) Ready() bool {
	return s == Paused || s == Playing
}

// LoadRequest identifies one load of a source. Generation increases on every
// load, so callbacks from a superseded load can be told apart even when the
// same source is selected again.
type LoadRequest struct {
	Source     string
	Generation uint64
}

// Player is the media playback primitive the cursor commands. Implementations
// report back through OnTimeAdvance, OnDurationKnown and OnEnded, tagged with
// the Generation of the load they belong to. A Player that also implements
// io.Closer is closed when the cursor is closed.
type Player interface {
	Load(req LoadRequest)
	Play()
	Pause()
	Seek(t float64)
}

// Snapshot is a copy of the cursor state.
type Snapshot struct {
	Source        string
	State         State
	CurrentTime   float64
	Duration      float64
	DurationKnown bool
	Generation    uint64
}

// IsPlaying reports whether playback is running.
func (s Snapshot) IsPlaying() bool { return s.State == Playing }

// EventKind says what changed.
type EventKind int

const (
	SourceChanged EventKind = iota
	StateChanged
	TimeChanged
	DurationChanged
)

// Event is delivered to subscribers after every state change.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}

// Listener receives cursor events.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// Cursor is the playback state machine.
type Cursor struct {
	player Player
	closed bool

	source      string
	state       State
	currentTime float64
	duration    float64
	generation  uint64

	// seek requested while Loading, applied once the source is ready
	pendingSeek    float64
	hasPendingSeek bool

	subs   []subscription
	nextID uint64
}

// New creates an Idle cursor commanding player.
func New(player Player) *Cursor {
	return &Cursor{player: player, state: Idle}
}

// Snapshot returns the current state.
func (c *Cursor) Snapshot() Snapshot {
	return Snapshot{
		Source:        c.source,
		State:         c.state,
		CurrentTime:   c.currentTime,
		Duration:      c.duration,
		DurationKnown: c.state.Ready(),
		Generation:    c.generation,
	}
}

// Source returns the selected source, "" when Idle.
func (c *Cursor) Source() string { return c.source }

// State returns the playback state.
func (c *Cursor) State() State { return c.state }

// CurrentTime returns the last reported playback position.
func (c *Cursor) CurrentTime() float64 { return c.currentTime }

// Progress returns currentTime/duration in [0,1], or 0 while the duration is
// unknown, zero or infinite.
func (c *Cursor) Progress() float64 {
	if !c.state.Ready() || c.duration <= 0 || math.IsInf(c.duration, 0) {
		return 0
	}
	p := c.currentTime / c.duration
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it.
func (c *Cursor) Subscribe(fn Listener) (unsubscribe func()) {
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription{id: id, fn: fn})
	return func() {
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Cursor) notify(kind EventKind) {
	ev := Event{Kind: kind, Snapshot: c.Snapshot()}
	// listeners may subscribe or unsubscribe while being notified
	subs := append([]subscription(nil), c.subs...)
	for _, s := range subs {
		if c.closed {
			return
		}
		s.fn(ev)
	}
}

// SelectSource switches to source: playback stops, time resets to 0 and the
// player starts loading. An empty source returns the cursor to Idle.
func (c *Cursor) SelectSource(source string) {
	if c.closed {
		return
	}
	if c.state == Playing {
		c.player.Pause()
	}
	c.hasPendingSeek = false
	c.generation++
	c.source = source
	c.currentTime = 0
	c.duration = 0

	if source == "" {
		c.state = Idle
		c.notify(SourceChanged)
		return
	}

	c.state = Loading
	c.player.Load(LoadRequest{Source: source, Generation: c.generation})
	c.notify(SourceChanged)
}

// RequestSeek asks the player to move to t, clamped to [0, duration].
// Non-finite values are ignored. While Loading the request is held until the
// source is ready; in Idle it is dropped. CurrentTime changes only when the
// player reports the new position through OnTimeAdvance.
func (c *Cursor) RequestSeek(t float64) {
	if c.closed || math.IsNaN(t) || math.IsInf(t, 0) {
		return
	}
	switch {
	case c.state == Loading:
		c.pendingSeek = t
		c.hasPendingSeek = true
	case c.state.Ready():
		c.player.Seek(c.clamp(t))
	}
}

func (c *Cursor) clamp(t float64) float64 {
	if t < 0 {
		return 0
	}
	if !math.IsInf(c.duration, 1) && t > c.duration {
		return c.duration
	}
	return t
}

// RequestSeekToSource selects source and seeks to t once it is ready. When
// source is already selected no reload happens.
func (c *Cursor) RequestSeekToSource(source string, t float64) {
	if c.closed || source == "" {
		return
	}
	if source != c.source || c.state == Idle {
		c.SelectSource(source)
	}
	c.RequestSeek(t)
}

// TogglePlayPause switches between Playing and Paused. It does nothing while
// Idle or Loading.
func (c *Cursor) TogglePlayPause() {
	if c.closed {
		return
	}
	switch c.state {
	case Playing:
		c.player.Pause()
		c.state = Paused
	case Paused:
		c.player.Play()
		c.state = Playing
	default:
		return
	}
	c.notify(StateChanged)
}

func (c *Cursor) current(gen uint64) bool {
	return !c.closed && c.state != Idle && gen == c.generation
}

// OnDurationKnown moves a Loading cursor to Paused and applies any pending
// seek. A later call for the same load updates the duration.
func (c *Cursor) OnDurationKnown(gen uint64, d float64) {
	if !c.current(gen) || math.IsNaN(d) || d < 0 {
		return
	}
	if c.state != Loading {
		if d != c.duration {
			c.duration = d
			c.notify(DurationChanged)
		}
		return
	}

	pending, hasPending := c.pendingSeek, c.hasPendingSeek
	c.hasPendingSeek = false
	c.duration = d
	c.state = Paused
	c.notify(StateChanged)

	// a listener may already have switched to another source
	if hasPending && gen == c.generation {
		c.RequestSeek(pending)
	}
}

// OnTimeAdvance records the player's position. Values need not be monotonic;
// a user seek moves time backwards.
func (c *Cursor) OnTimeAdvance(gen uint64, t float64) {
	if !c.current(gen) || !c.state.Ready() || math.IsNaN(t) || math.IsInf(t, 0) {
		return
	}
	if t == c.currentTime {
		return
	}
	c.currentTime = t
	c.notify(TimeChanged)
}

// OnEnded stops a playing cursor at the end of the source.
func (c *Cursor) OnEnded(gen uint64) {
	if !c.current(gen) || c.state != Playing {
		return
	}
	c.state = Paused
	c.notify(StateChanged)
}

// Close releases the player and detaches all subscribers. Callbacks and
// requests arriving afterwards are ignored.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	if c.state == Playing {
		c.player.Pause()
	}
	c.closed = true
	c.state = Idle
	c.subs = nil
	c.hasPendingSeek = false
	if closer, ok := c.player.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
