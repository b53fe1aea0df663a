package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesOnKind(t *testing.T) {
	err := E(KindInviteExpired, "invitation expired")

	assert.True(t, errors.Is(err, E(KindInviteExpired, "different message")))
	assert.False(t, errors.Is(err, E(KindInviteUsed, "invitation expired")))
	assert.True(t, IsKind(err, KindInviteExpired))
	assert.False(t, IsKind(err, KindInviteUsed))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("accept invitation: %w", E(KindInviteInvalid, "invalid invitation token"))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindInviteInvalid, kind)
	assert.True(t, IsKind(err, KindInviteInvalid))
}

func TestKindOfPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("boom"))
	assert.False(t, ok)
	assert.False(t, IsKind(nil, KindNotFound))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: user not found", E(KindNotFound, "user not found").Error())
	assert.Equal(t, "NOT_FOUND", E(KindNotFound, "").Error())
}
