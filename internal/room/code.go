package room

import (
	"crypto/rand"
	"math/big"
)

// CodeLength is the fixed length of human-entry room codes.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// randomCode returns a fresh uppercase room code. Uniqueness is enforced by
// the store; callers regenerate on collision.
func randomCode() string {
	b := make([]byte, CodeLength)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}
