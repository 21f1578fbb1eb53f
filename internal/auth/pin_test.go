package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPin_VerifyPin(t *testing.T) {
	t.Run("matching pin verifies", func(t *testing.T) {
		hash, err := HashPin("1234")
		assert.NoError(t, err)
		assert.True(t, VerifyPin("1234", hash))
	})

	t.Run("wrong pin does not verify", func(t *testing.T) {
		hash, err := HashPin("1234")
		assert.NoError(t, err)
		assert.False(t, VerifyPin("4321", hash))
	})

	t.Run("same pin hashes differently per salt", func(t *testing.T) {
		first, err := HashPin("1234")
		assert.NoError(t, err)
		second, err := HashPin("1234")
		assert.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("malformed stored hash never verifies", func(t *testing.T) {
		assert.False(t, VerifyPin("1234", "not-a-hash"))
		assert.False(t, VerifyPin("1234", "a$b$c"))
		assert.False(t, VerifyPin("1234", "!!!$???"))
	})
}
