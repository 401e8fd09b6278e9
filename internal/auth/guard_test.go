package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

func TestGuardRequireOwner(t *testing.T) {
	g := NewGuard("0xOwner")

	require.NoError(t, g.RequireOwner("0xOwner"))
	assert.Equal(t, "0xOwner", g.Owner())

	assert.ErrorIs(t, g.RequireOwner("0xSomeoneElse"), domain.ErrUnauthorized)
	assert.ErrorIs(t, g.RequireOwner(""), domain.ErrUnauthorized)
}
