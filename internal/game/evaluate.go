// internal/game/evaluate.go
//
// Pure guess evaluation for a single round.
// Responsibilities:
//   - Compare a guess against the hidden solution (both 5 uppercase letters).
//   - Produce ordered per-letter feedback using the two-pass algorithm.
//
// Notes:
//   - Duplicate letters never double-credit: each solution letter is consumed
//     at most once across correct and present marks.
//   - Evaluation is deterministic and side-effect free; callers may safely
//     recompute feedback for the same guess.

package game

import (
	"errors"
	"fmt"
)

// WordLength is the fixed length of solutions and guesses.
const WordLength = 5

var ErrLength = errors.New("guess and solution must be exactly 5 letters")

// Evaluate scores guess against solution.
//
// Pass 1:
//   - Mark exact position matches as correct and consume those solution letters.
//
// Pass 2:
//   - For each unmarked position, consume one remaining occurrence of the
//     letter if the solution still holds one (present), otherwise absent.
func Evaluate(guess, solution string) (Feedback, error) {
	g := []rune(guess)
	s := []rune(solution)
	if len(g) != WordLength || len(s) != WordLength {
		return nil, ErrLength
	}

	fb := make(Feedback, WordLength)

	// Occurrences of solution letters not matched exactly.
	var remaining [26]int

	for i := 0; i < WordLength; i++ {
		if g[i] == s[i] {
			fb[i] = LetterMark{Letter: string(g[i]), Status: StatusCorrect}
		} else {
			j := idx(s[i])
			if j < 0 {
				return nil, fmt.Errorf("solution letter %q outside A-Z", string(s[i]))
			}
			remaining[j]++
		}
	}

	for i := 0; i < WordLength; i++ {
		if fb[i].Status == StatusCorrect {
			continue
		}
		j := idx(g[i])
		if j < 0 {
			return nil, fmt.Errorf("guess letter %q outside A-Z", string(g[i]))
		}
		if remaining[j] > 0 {
			fb[i] = LetterMark{Letter: string(g[i]), Status: StatusPresent}
			remaining[j]--
		} else {
			fb[i] = LetterMark{Letter: string(g[i]), Status: StatusAbsent}
		}
	}
	return fb, nil
}

// idx maps an uppercase ASCII letter rune to 0..25, or -1 if out of range.
func idx(r rune) int {
	if r < 'A' || r > 'Z' {
		return -1
	}
	return int(r - 'A')
}
