// internal/session/reconcile.go
//
// Pure state reconciliation. Both the change-event subscription and the
// periodic poll feed the same logic: events go through Reconcile, polls
// replace the state with a freshly built snapshot. Keeping Reconcile pure
// means the two paths cannot diverge.

package session

import (
	"sort"

	"wordroom/internal/store"
)

// State is a session's local mirror of one room: the room row, its players,
// and the current round's guesses.
type State struct {
	Room    *store.Room
	Players []store.Player
	Guesses []store.Guess
}

// Reconcile applies one change event to a state and returns the new state.
// The input state is not mutated.
func Reconcile(s State, ev store.Event) State {
	switch ev.Kind {
	case store.KindRoomChanged:
		if ev.Room == nil {
			return s
		}
		next := State{Room: ev.Room, Players: s.Players}
		if s.Room != nil && sameRound(s.Room, ev.Room) {
			next.Guesses = s.Guesses
		}
		// round advanced or re-activated: guess boards reset, old guesses
		// remain history in the store filtered out by round number
		return next

	case store.KindRoomDeleted:
		return State{}

	case store.KindPlayerChanged:
		if ev.Player == nil {
			return s
		}
		players := make([]store.Player, 0, len(s.Players)+1)
		replaced := false
		for _, p := range s.Players {
			if p.ID == ev.Player.ID {
				players = append(players, *ev.Player)
				replaced = true
			} else {
				players = append(players, p)
			}
		}
		if !replaced {
			players = append(players, *ev.Player)
		}
		sortPlayers(players)
		return State{Room: s.Room, Players: players, Guesses: s.Guesses}

	case store.KindPlayerRemoved:
		players := make([]store.Player, 0, len(s.Players))
		for _, p := range s.Players {
			if p.ID != ev.PlayerID {
				players = append(players, p)
			}
		}
		return State{Room: s.Room, Players: players, Guesses: s.Guesses}

	case store.KindGuessInserted, store.KindGuessUpdated:
		if ev.Guess == nil || s.Room == nil || ev.Guess.RoundNo != s.Room.RoundNo {
			return s
		}
		guesses := make([]store.Guess, 0, len(s.Guesses)+1)
		replaced := false
		for _, g := range s.Guesses {
			if g.ID == ev.Guess.ID {
				guesses = append(guesses, *ev.Guess)
				replaced = true
			} else {
				guesses = append(guesses, g)
			}
		}
		if !replaced {
			guesses = append(guesses, *ev.Guess)
		}
		return State{Room: s.Room, Players: s.Players, Guesses: guesses}
	}
	return s
}

// sameRound reports whether b continues the round a was mirroring.
func sameRound(a, b *store.Room) bool {
	if b.RoundNo > a.RoundNo {
		return false
	}
	if !a.RoundActive && b.RoundActive {
		return false
	}
	return true
}

func sortPlayers(players []store.Player) {
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].ID < players[j].ID
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
}
