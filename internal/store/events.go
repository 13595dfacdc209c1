// internal/store/events.go
//
// In-process change notification for store subscribers.
// One tagged event type covers every row change; sessions dispatch on Kind.
// Publishing never blocks: a full subscriber buffer drops the event, the
// subscriber's poll picks the change up on its next tick.

package store

import "sync"

// Kind tags a change event.
type Kind string

const (
	KindRoomChanged   Kind = "room_changed"
	KindRoomDeleted   Kind = "room_deleted"
	KindPlayerChanged Kind = "player_changed"
	KindPlayerRemoved Kind = "player_removed"
	KindGuessInserted Kind = "guess_inserted"
	KindGuessUpdated  Kind = "guess_updated"
)

// Event is one row change scoped to a room. Exactly one of Room, Player, or
// Guess is set for change kinds; removal kinds carry only the row id.
type Event struct {
	Kind     Kind    `json:"kind"`
	RoomID   string  `json:"roomId"`
	Room     *Room   `json:"room,omitempty"`
	Player   *Player `json:"player,omitempty"`
	PlayerID string  `json:"playerId,omitempty"`
	Guess    *Guess  `json:"guess,omitempty"`
}

const subscriberBuffer = 64

type bus struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan Event
}

func newBus() *bus {
	return &bus{subs: make(map[string]map[int]chan Event)}
}

func (b *bus) subscribe(roomID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[int]chan Event)
	}
	b.subs[roomID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[roomID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(b.subs, roomID)
			}
		}
	}
	return ch, cancel
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.RoomID] {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; the poll path converges
		}
	}
}
