package bridge

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength   = 24
)

// generateToken produces the session secret when GDRB_TOKEN is absent:
// 24 characters over [A-Za-z0-9], which carries just over 142 bits.
func generateToken() (string, error) {
	alphabetLen := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, tokenLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("read entropy: %w", err)
		}
		out[i] = tokenAlphabet[n.Int64()]
	}
	return string(out), nil
}
