package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	c := NewClient(nil, 4)

	req.True(r.Join(c, "art", "u1"))
	req.False(r.Join(c, "art", "u1"))
	req.Len(r.Members("art"), 1)
	req.Equal([]string{"art"}, r.Communities(c))
}

func TestRegistry_Leave(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	c := NewClient(nil, 4)
	r.Join(c, "art", "u1")

	userID, ok := r.Leave(c, "art")
	req.True(ok)
	req.Equal("u1", userID)
	req.Empty(r.Members("art"))
	req.Empty(r.Communities(c))

	_, ok = r.Leave(c, "art")
	req.False(ok)
}

func TestRegistry_LeaveAll(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	c, other := NewClient(nil, 4), NewClient(nil, 4)
	r.Attach(c)
	r.Join(c, "art", "u1")
	r.Join(c, "music", "u1")
	r.Join(other, "art", "u2")

	left := r.LeaveAll(c)
	req.Equal(map[string]string{"art": "u1", "music": "u1"}, left)
	req.Equal([]*Client{other}, r.Members("art"))
	req.Empty(r.Members("music"))
	req.Empty(r.LeaveAll(c))
}

func TestRegistry_HasUser(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	phone, laptop := NewClient(nil, 4), NewClient(nil, 4)
	r.Join(phone, "art", "u1")
	r.Join(laptop, "art", "u1")

	r.LeaveAll(phone)
	req.True(r.HasUser("art", "u1"))
	r.LeaveAll(laptop)
	req.False(r.HasUser("art", "u1"))
}

func TestRegistry_BroadcastTargetsOnlyMembers(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	member, outsider, full := NewClient(nil, 4), NewClient(nil, 4), NewClient(nil, 1)
	r.Join(member, "art", "u1")
	r.Join(full, "art", "u2")
	r.Join(outsider, "music", "u3")
	req.True(full.Deliver([]byte("backlog")))

	delivered, dropped := r.Broadcast("art", []byte("hello"))
	req.Equal(1, delivered)
	req.Equal(1, dropped)
	req.Equal([]byte("hello"), <-member.send)
	req.Empty(outsider.send)

	delivered, dropped = r.Broadcast("nobody", []byte("hello"))
	req.Zero(delivered)
	req.Zero(dropped)
}

func TestRegistry_ShutdownClosesAttachedClients(t *testing.T) {
	r := NewRegistry()
	c := NewClient(nil, 4)
	r.Attach(c)

	r.Shutdown()

	require.False(t, c.Deliver([]byte("x")))
	require.Error(t, c.Context().Err())
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(nil, 64)
			r.Attach(c)
			community := fmt.Sprintf("c%d", i%4)
			for range 50 {
				r.Join(c, community, "u")
				r.Broadcast(community, []byte("x"))
				r.HasUser(community, "u")
				r.Leave(c, community)
			}
			r.LeaveAll(c)
		}()
	}
	wg.Wait()

	for i := range 4 {
		require.Empty(t, r.Members(fmt.Sprintf("c%d", i)))
	}
}
