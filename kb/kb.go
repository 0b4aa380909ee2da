package kb

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// ErrInvalidObserver is returned for positions that look unset.
var ErrInvalidObserver = errors.New("invalid observer position")

// unsetThreshold is how close to zero (degrees) a coordinate may be before
// the position is treated as never having been set.
const unsetThreshold = 1e-5

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	// EventObserverMoved is emitted by local writes such as dead reckoning.
	EventObserverMoved EventType = iota
	// EventObserverReplaced is emitted when a position arrives from outside.
	EventObserverReplaced
	// EventEnabledChanged is emitted when the synthesis flag flips.
	EventEnabledChanged
)

func (t EventType) String() string {
	switch t {
	case EventObserverMoved:
		return "observer_moved"
	case EventObserverReplaced:
		return "observer_replaced"
	case EventEnabledChanged:
		return "enabled_changed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type     EventType
	Observer model.ObserverState
	Enabled  bool
}

// RemoteUpdate is one message from the observer position channel.
type RemoteUpdate struct {
	Observer model.ObserverState
	Enabled  bool
}

// KnowledgeBase is the in-memory, thread-safe store for the single observer
// state and the synthesis enable flag.
type KnowledgeBase struct {
	mu sync.RWMutex

	observer   model.ObserverState
	enabled    bool
	lastRemote time.Time

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs a KB holding initial.
func NewKnowledgeBase(initial model.ObserverState) *KnowledgeBase {
	return &KnowledgeBase{
		observer: initial,
		subs:     make(map[int]func(Event)),
	}
}

// ValidateObserver rejects positions whose latitude or longitude is within
// 1e-5° of zero, which is how an unset position arrives.
func ValidateObserver(s model.ObserverState) error {
	if math.IsNaN(s.Latitude) || math.IsNaN(s.Longitude) {
		return fmt.Errorf("%w: NaN coordinate", ErrInvalidObserver)
	}
	if math.Abs(s.Latitude) < unsetThreshold || math.Abs(s.Longitude) < unsetThreshold {
		return fmt.Errorf("%w: (%v, %v) looks unset", ErrInvalidObserver, s.Latitude, s.Longitude)
	}
	if math.Abs(s.Latitude) > 90 || math.Abs(s.Longitude) > 180 {
		return fmt.Errorf("%w: (%v, %v) out of range", ErrInvalidObserver, s.Latitude, s.Longitude)
	}
	return nil
}

// Observer returns a copy of the current observer state.
func (kb *KnowledgeBase) Observer() model.ObserverState {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.observer
}

// Enabled reports whether synthetic telemetry should replace genuine data.
func (kb *KnowledgeBase) Enabled() bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.enabled
}

// SetObserver validates s and replaces the observer state.
func (kb *KnowledgeBase) SetObserver(s model.ObserverState) error {
	if err := ValidateObserver(s); err != nil {
		return err
	}
	kb.write(Event{Type: EventObserverReplaced}, func() { kb.observer = s })
	return nil
}

// UpdateObserver replaces the observer state without validation. It is used
// for locally integrated motion.
func (kb *KnowledgeBase) UpdateObserver(s model.ObserverState) {
	kb.write(Event{Type: EventObserverMoved}, func() { kb.observer = s })
}

// SetEnabled toggles synthesis and notifies subscribers when it changes.
func (kb *KnowledgeBase) SetEnabled(on bool) {
	kb.mu.Lock()
	if kb.enabled == on {
		kb.mu.Unlock()
		return
	}
	kb.enabled = on
	event := Event{Type: EventEnabledChanged, Observer: kb.observer, Enabled: on}
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, event)
}

// ApplyRemote applies an update from the position channel. Updates carry
// the source timestamp; one equal to the last applied timestamp is a
// redelivery and is skipped. Delivery order is not trusted, so any other
// timestamp is applied. It reports whether the observer was replaced.
func (kb *KnowledgeBase) ApplyRemote(u RemoteUpdate) (bool, error) {
	kb.SetEnabled(u.Enabled)

	kb.mu.RLock()
	dup := !kb.lastRemote.IsZero() && u.Observer.Timestamp.Equal(kb.lastRemote)
	kb.mu.RUnlock()
	if dup {
		return false, nil
	}
	if err := ValidateObserver(u.Observer); err != nil {
		return false, err
	}

	kb.write(Event{Type: EventObserverReplaced}, func() {
		kb.observer = u.Observer
		kb.lastRemote = u.Observer.Timestamp
	})
	return true, nil
}

func (kb *KnowledgeBase) write(event Event, apply func()) {
	kb.mu.Lock()
	apply()
	event.Observer = kb.observer
	event.Enabled = kb.enabled
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, event)
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs
}

func notify(subs []func(Event), event Event) {
	for _, sub := range subs {
		sub(event)
	}
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
