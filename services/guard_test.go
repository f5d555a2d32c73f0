package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base64 of the RFC 6238 test key "12345678901234567890"
const testSharedSecret = "MTIzNDU2Nzg5MDEyMzQ1Njc4OTA="

func TestGenerateAuthCode(t *testing.T) {
	cases := map[int64]string{
		59:         "PV9M4",
		1111111109: "PY4YB",
		1111111111: "5PP3V",
	}
	for unix, want := range cases {
		code, err := GenerateAuthCode(testSharedSecret, time.Unix(unix, 0))
		require.NoError(t, err)
		assert.Equal(t, want, code, "t=%d", unix)
	}
}

func TestGenerateAuthCodeStableWithinStep(t *testing.T) {
	a, err := GenerateAuthCode(testSharedSecret, time.Unix(1111111080, 0))
	require.NoError(t, err)
	b, err := GenerateAuthCode(testSharedSecret, time.Unix(1111111109, 0))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 5)
}

func TestGenerateAuthCodeInvalidSecret(t *testing.T) {
	_, err := GenerateAuthCode("not base64!", time.Now())
	assert.ErrorIs(t, err, ErrInvalidSharedSecret)

	_, err = GenerateAuthCode("", time.Now())
	assert.ErrorIs(t, err, ErrInvalidSharedSecret)
}
