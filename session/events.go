package session

import (
	"sync"

	"github.com/jrsteele09/go-social-session/identity"
)

type EventKind int

const (
	EventLoggedIn EventKind = iota
	EventLoggedOut
)

func (k EventKind) String() string {
	if k == EventLoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

// Reason says which operation changed the identity.
type Reason string

const (
	ReasonLogin       Reason = "login"
	ReasonRestore     Reason = "restore"
	ReasonLogout      Reason = "logout"
	ReasonInvalidated Reason = "invalidated"
)

// Event is published whenever the logged-in identity changes. User is nil
// for EventLoggedOut.
type Event struct {
	Kind   EventKind
	User   *identity.User
	Reason Reason
}

// Subscription receives events on C until Unsubscribe is called, which
// closes C. Events published before Subscribe are not replayed.
type Subscription struct {
	C <-chan Event

	id   uint64
	b    *broadcaster
	once sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.b.remove(s.id)
	})
}

type broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: map[uint64]chan Event{}}
}

func (b *broadcaster) subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = ch
	return &Subscription{C: ch, id: b.nextID, b: b}
}

func (b *broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// publish never blocks: a full subscriber loses its oldest pending event.
func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
