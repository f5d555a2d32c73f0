package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidSharedSecret = errors.New("invalid shared secret")

const guardAlphabet = "23456789BCDFGHJKMNPQRTVWXY"

// GenerateAuthCode returns the five character Steam Guard code for the
// base64 shared secret at time t.
func GenerateAuthCode(sharedSecret string, t time.Time) (string, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sharedSecret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSharedSecret, err)
	}
	if len(key) == 0 {
		return "", ErrInvalidSharedSecret
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(t.Unix()/30))

	mac := hmac.New(sha1.New, key)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := make([]byte, 5)
	for i := range code {
		code[i] = guardAlphabet[value%uint32(len(guardAlphabet))]
		value /= uint32(len(guardAlphabet))
	}
	return string(code), nil
}
