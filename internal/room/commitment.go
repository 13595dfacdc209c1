package room

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Commitment returns a one-way hash binding the solution to a specific room
// and round. It is published when the round starts so clients can verify the
// reveal afterwards without the solution ever being disclosed early.
func Commitment(roomID string, roundNo int, solution string) string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%s|%d|%s", roomID, roundNo, solution)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyCommitment checks a revealed solution against a published commitment.
func VerifyCommitment(roomID string, roundNo int, solution, commitment string) bool {
	return Commitment(roomID, roundNo, solution) == commitment
}
