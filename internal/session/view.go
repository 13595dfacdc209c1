// internal/session/view.go
//
// Read-only view model handed to presentation. Other players' in-progress
// guess letters are never exposed: until a guess is evaluated only the
// attempt is visible, after evaluation only the per-letter statuses, and the
// letters themselves appear once the round resolves.

package session

import (
	"wordroom/internal/game"
	"wordroom/internal/store"
)

// View is the full per-session room snapshot.
type View struct {
	Room        *store.Room    `json:"room"`
	Players     []store.Player `json:"players"`
	MyGuesses   []store.Guess  `json:"myGuesses"`
	Others      []OtherGuess   `json:"othersGuesses"`
	RoundResult *RoundResult   `json:"roundResult,omitempty"`
}

// OtherGuess is another player's guess with letters withheld while the round
// is in progress.
type OtherGuess struct {
	PlayerID  string        `json:"playerId"`
	AttemptNo int           `json:"attemptNo"`
	Statuses  []game.Status `json:"statuses,omitempty"`
	Letters   string        `json:"letters,omitempty"`
	Correct   *bool         `json:"correct,omitempty"`
}

// RoundResult is surfaced once a round resolves: winner (nil for an
// exhausted round) and the revealed solution.
type RoundResult struct {
	RoundNo        int     `json:"roundNo"`
	WinnerPlayerID *string `json:"winnerPlayerId,omitempty"`
	WinnerName     string  `json:"winnerName,omitempty"`
	Solution       string  `json:"solution"`
}

// View builds the current view model. Returns a zero view when the session
// is not mirroring a room (left, or room deleted).
func (s *Session) View() View {
	s.mu.RLock()
	st := s.state
	me := s.playerID
	s.mu.RUnlock()

	if st.Room == nil {
		return View{}
	}

	v := View{
		Room:    st.Room,
		Players: append([]store.Player(nil), st.Players...),
	}

	revealed := !st.Room.RoundActive && st.Room.Reveal != nil

	for _, g := range st.Guesses {
		if g.PlayerID == me {
			v.MyGuesses = append(v.MyGuesses, g)
			continue
		}
		og := OtherGuess{PlayerID: g.PlayerID, AttemptNo: g.AttemptNo, Correct: g.Correct}
		if g.Feedback != nil {
			og.Statuses = make([]game.Status, len(g.Feedback))
			for i, m := range g.Feedback {
				og.Statuses[i] = m.Status
			}
		}
		if revealed {
			og.Letters = g.Letters
		}
		v.Others = append(v.Others, og)
	}

	if revealed {
		rr := &RoundResult{
			RoundNo:        st.Room.RoundNo,
			WinnerPlayerID: st.Room.WinnerPlayerID,
			Solution:       *st.Room.Reveal,
		}
		if rr.WinnerPlayerID != nil {
			for _, p := range st.Players {
				if p.ID == *rr.WinnerPlayerID {
					rr.WinnerName = p.DisplayName
					break
				}
			}
		}
		v.RoundResult = rr
	}
	return v
}
