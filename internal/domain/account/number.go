package account

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var numberSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(NumberLength), nil)

// GenerateNumber returns a uniformly random, zero-padded account number.
func GenerateNumber() (string, error) {
	n, err := rand.Int(rand.Reader, numberSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", NumberLength, n), nil
}
