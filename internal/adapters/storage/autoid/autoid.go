// Package autoid generates store-native document ids.
package autoid

import (
	"crypto/rand"
	"math/big"
)

// Length is the size of every generated id.
const Length = 20

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var alphabetSize = big.NewInt(int64(len(alphabet)))

// New returns a random 20-character alphanumeric id, the same shape hosted
// document stores use for auto-generated ids.
func New() string {
	out := make([]byte, Length)
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic("autoid: crypto/rand failed: " + err.Error())
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out)
}
