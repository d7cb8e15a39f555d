package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://polygon-rpc.com"))
	assert.True(t, IsURL("wss://relay.walletconnect.com"))
	assert.True(t, IsURL("  http://127.0.0.1:1248 "))
	assert.False(t, IsURL(""))
	assert.False(t, IsURL("   "))
	assert.False(t, IsURL("not a url"))
}

func TestValidateStruct(t *testing.T) {
	type sample struct {
		Name string `validate:"required"`
		Port int    `validate:"gte=1"`
	}

	require.NoError(t, ValidateStruct(sample{Name: "x", Port: 1}))

	err := ValidateStruct(sample{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample.Name failed required")
	assert.Contains(t, err.Error(), "sample.Port failed gte=1")
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t,
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		NormalizeAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"),
	)
	assert.Equal(t, "0xABC", NormalizeAddress(" 0xABC "))
	assert.True(t, SameAddress("0xabc", "0xABC"))
}
