package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

const (
	CodeMin = 100000
	CodeMax = 999999
)

var codeSpan = big.NewInt(CodeMax - CodeMin + 1)

// GenerateNumericCode returns a uniformly distributed 6-digit code in
// [CodeMin, CodeMax]. r must be a cryptographically secure source; nil
// means crypto/rand.
func GenerateNumericCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+CodeMin), nil
}

func RandomHex(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32 // 256 бит по умолчанию
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
