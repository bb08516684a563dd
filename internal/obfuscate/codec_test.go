package obfuscate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestRoundTrip(t *testing.T) {
	sealed, err := NewSealed(testSecret)
	require.NoError(t, err)

	values := []float64{0, 1, -1, 0.01, 12.34, -99999.99, 1e-9, 123456789.123, 0.1 + 0.2}
	for _, c := range []Codec{sealed, Plain{}} {
		t.Run(c.Mode(), func(t *testing.T) {
			for _, v := range values {
				enc, err := c.Encode("user-1", v)
				require.NoError(t, err)
				got, err := c.Decode("user-1", enc)
				require.NoError(t, err)
				assert.Equal(t, v, got, "value %v via %q", v, enc)
			}
		})
	}
}

func TestSealedIsPerUser(t *testing.T) {
	c, err := NewSealed(testSecret)
	require.NoError(t, err)

	enc, err := c.Encode("alice", 42)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, sealedPrefix))

	_, err = c.Decode("bob", enc)
	assert.True(t, errors.Is(err, ErrMalformed), "another user's key must not open the value")

	again, err := c.Encode("alice", 42)
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "nonces must differ")
}

func TestSealedRejectsTampering(t *testing.T) {
	c, err := NewSealed(testSecret)
	require.NoError(t, err)
	enc, err := c.Encode("u", 7.5)
	require.NoError(t, err)

	b := []byte(enc)
	mid := len(sealedPrefix) + 10
	if b[mid] == 'A' {
		b[mid] = 'B'
	} else {
		b[mid] = 'A'
	}
	_, err = c.Decode("u", string(b))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = c.Decode("u", "v2:!!!")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = c.Decode("u", "v2:")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSealedReadsPlainValues(t *testing.T) {
	c, err := NewSealed(testSecret)
	require.NoError(t, err)
	v, err := c.Decode("u", "15.5")
	require.NoError(t, err)
	assert.Equal(t, 15.5, v)

	_, err = Plain{}.Decode("u", "v2:abc")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNew(t *testing.T) {
	_, err := New(ModeSealed, []byte("short"))
	assert.ErrorIs(t, err, ErrShortSecret)

	c, err := New(ModePlain, nil)
	require.NoError(t, err)
	assert.Equal(t, ModePlain, c.Mode())

	_, err = New("rot13", nil)
	assert.Error(t, err)
}
