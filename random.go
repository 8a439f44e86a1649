package accounts

import (
	"crypto/rand"
	"math/big"
)

const tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	// VerifyTokenLength is the length of email verification tokens.
	VerifyTokenLength = 64
	// HideSaltLength is the length of the salt prefixed to identity
	// fields when an account is hidden.
	HideSaltLength = 3
)

// RandomToken generates an alphanumeric token of the given length using
// crypto/rand. Used for verification tokens and the hide salt.
func RandomToken(length int) string {
	max := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// rand.Reader failing means the platform entropy source is
			// broken, nothing sensible to do but bail
			panic(err)
		}
		out[i] = tokenAlphabet[n.Int64()]
	}
	return string(out)
}
