// internal/game/types.go
//
// Core type definitions for guess evaluation.
// Defines:
//   - Status: per-letter result of a guess (correct/present/absent).
//   - LetterMark: one letter of feedback, ordered within a guess.
//   - Feedback: the full five-letter evaluation of a guess.

package game

// Status classifies a single guess letter against the solution.
// Possible values:
//   - "correct": letter is in the solution at this position.
//   - "present": letter exists in the solution at a different position.
//   - "absent":  letter does not exist in the (remaining) solution.
type Status string

const (
	StatusCorrect Status = "correct"
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// LetterMark pairs a guessed letter with its evaluation status.
type LetterMark struct {
	Letter string `json:"letter"`
	Status Status `json:"status"`
}

// Feedback is the ordered per-letter evaluation of one guess.
// Once computed for a stored guess it never changes.
type Feedback []LetterMark

// Correct reports whether every mark is StatusCorrect.
func (f Feedback) Correct() bool {
	if len(f) == 0 {
		return false
	}
	for _, m := range f {
		if m.Status != StatusCorrect {
			return false
		}
	}
	return true
}
