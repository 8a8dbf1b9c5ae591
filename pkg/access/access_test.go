package access

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newControl(t *testing.T) *Control {
	t.Helper()
	c, err := NewControl("alice")
	require.NoError(t, err)
	return c
}

func TestNewControl(t *testing.T) {
	_, err := NewControl("")
	require.ErrorIs(t, err, ErrEmptyPrincipal)

	c := newControl(t)
	assert.True(t, c.Has("alice", CapAdmin))
	assert.False(t, c.Has("alice", CapGuardian))
	assert.Equal(t, []Principal{"alice"}, c.Holders(CapAdmin))
}

func TestGrantRevoke(t *testing.T) {
	c := newControl(t)

	require.NoError(t, c.Grant("alice", "bob", CapGuardian))
	assert.True(t, c.Has("bob", CapGuardian))
	require.NoError(t, c.Authorize("bob", CapGuardian))

	err := c.Authorize("bob", CapOracleManager)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = c.Grant("bob", "carol", CapGuardian)
	require.ErrorIs(t, err, ErrUnauthorized, "non-admin cannot grant")

	err = c.Grant("alice", "bob", CapAdmin)
	require.ErrorIs(t, err, ErrAdminViaHandoverOnly)

	err = c.Revoke("alice", "alice", CapAdmin)
	require.ErrorIs(t, err, ErrAdminViaHandoverOnly)

	err = c.Grant("alice", "", CapGuardian)
	require.ErrorIs(t, err, ErrEmptyPrincipal)

	err = c.Grant("alice", "bob", Capability(42))
	require.ErrorIs(t, err, ErrUnknownCapability)

	require.NoError(t, c.Revoke("alice", "bob", CapGuardian))
	assert.False(t, c.Has("bob", CapGuardian))
	assert.Empty(t, c.Holders(CapGuardian))
}

func TestHandover(t *testing.T) {
	c := newControl(t)
	require.NoError(t, c.Grant("alice", "ops", CapGuardian))

	require.ErrorIs(t, c.BeginHandover("alice", ""), ErrEmptyPrincipal)
	require.ErrorIs(t, c.BeginHandover("mallory", "mallory"), ErrUnauthorized)

	require.NoError(t, c.BeginHandover("alice", "bob"))
	require.ErrorIs(t, c.BeginHandover("alice", "carol"), ErrHandoverPending)

	pending, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, PendingHandover{PendingAdmin: "bob", Initiator: "alice"}, pending)

	_, err := c.AcceptHandover("carol")
	require.ErrorIs(t, err, ErrNotPendingAdmin)
	assert.True(t, c.Has("alice", CapAdmin), "failed accept must not move control")

	done, err := c.AcceptHandover("bob")
	require.NoError(t, err)
	assert.Equal(t, Principal("bob"), done.PendingAdmin)

	assert.True(t, c.Has("bob", CapAdmin))
	assert.False(t, c.Has("alice", CapAdmin))
	_, ok = c.Pending()
	assert.False(t, ok)

	require.ErrorIs(t, c.Grant("alice", "eve", CapGuardian), ErrUnauthorized)
	require.NoError(t, c.Grant("bob", "eve", CapGuardian))
	assert.True(t, c.Has("ops", CapGuardian), "other grants survive the handover")
}

func TestCancelHandover(t *testing.T) {
	c := newControl(t)

	require.ErrorIs(t, c.CancelHandover("alice"), ErrNoHandoverPending)
	require.NoError(t, c.BeginHandover("alice", "bob"))
	require.ErrorIs(t, c.CancelHandover("bob"), ErrUnauthorized)
	require.NoError(t, c.CancelHandover("alice"))

	_, err := c.AcceptHandover("bob")
	require.ErrorIs(t, err, ErrNoHandoverPending)
	assert.True(t, c.Has("alice", CapAdmin))

	require.NoError(t, c.BeginHandover("alice", "carol"), "a new handover can start after cancel")
}

func TestParseCapability(t *testing.T) {
	for _, capability := range []Capability{CapAdmin, CapOracleManager, CapGuardian} {
		parsed, err := ParseCapability(capability.String())
		require.NoError(t, err)
		assert.Equal(t, capability, parsed)
	}
	_, err := ParseCapability("root")
	require.ErrorIs(t, err, ErrUnknownCapability)
}

func TestConcurrentAuthorize(t *testing.T) {
	c := newControl(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Grant("alice", "bob", CapGuardian)
			_ = c.Revoke("alice", "bob", CapGuardian)
		}()
		go func() {
			defer wg.Done()
			_ = c.Authorize("bob", CapGuardian)
			_ = c.Holders(CapGuardian)
		}()
	}
	wg.Wait()
}
