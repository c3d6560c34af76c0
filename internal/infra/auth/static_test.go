package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fardannozami/healthsync/internal/infra/auth"
)

func TestStatic_NotifiesCurrentAndChanges(t *testing.T) {
	a := auth.NewStatic("alice")

	var seen []string
	sub := a.OnIdentityChange(func(id string) { seen = append(seen, id) })

	a.SignIn("bob")
	a.SignIn("bob")
	require.NoError(t, a.SignOut(context.Background()))

	assert.Equal(t, []string{"alice", "bob", ""}, seen)
	assert.Empty(t, a.Identity())

	require.NoError(t, sub.Close())
	a.SignIn("carol")
	assert.Len(t, seen, 3, "closed listener is not called")
}
