package chat

import (
	"sync"

	"github.com/samber/lo"
)

// Registry tracks which clients are subscribed to which community. Each
// membership remembers the user that joined, for presence bookkeeping.
type Registry struct {
	mu          sync.RWMutex
	communities map[string]map[*Client]string // community -> client -> user id
	memberships map[*Client]map[string]string // client -> community -> user id
	clients     map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		communities: make(map[string]map[*Client]string),
		memberships: make(map[*Client]map[string]string),
		clients:     make(map[*Client]struct{}),
	}
}

// Attach records an open connection so Shutdown can reach it.
func (r *Registry) Attach(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// Join adds c to community. Joining twice is a no-op apart from refreshing the
// recorded user. It reports whether the membership is new.
func (r *Registry) Join(c *Client, community, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.communities[community]
	if members == nil {
		members = make(map[*Client]string)
		r.communities[community] = members
	}
	_, existed := members[c]
	members[c] = userID

	joined := r.memberships[c]
	if joined == nil {
		joined = make(map[string]string)
		r.memberships[c] = joined
	}
	joined[community] = userID
	return !existed
}

// Leave removes c from community and returns the user that had joined.
func (r *Registry) Leave(c *Client, community string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(c, community)
}

func (r *Registry) leaveLocked(c *Client, community string) (string, bool) {
	members, ok := r.communities[community]
	if !ok {
		return "", false
	}
	userID, ok := members[c]
	if !ok {
		return "", false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.communities, community)
	}
	if joined := r.memberships[c]; joined != nil {
		delete(joined, community)
		if len(joined) == 0 {
			delete(r.memberships, c)
		}
	}
	return userID, true
}

// LeaveAll drops every membership of c and forgets the connection. It returns
// the communities c was in, mapped to the user that joined each.
func (r *Registry) LeaveAll(c *Client) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make(map[string]string, len(r.memberships[c]))
	for community := range r.memberships[c] {
		if userID, ok := r.leaveLocked(c, community); ok {
			left[community] = userID
		}
	}
	delete(r.clients, c)
	return left
}

// Members returns a snapshot of the clients subscribed to community.
func (r *Registry) Members(community string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.communities[community])
}

// Communities returns the communities c has joined.
func (r *Registry) Communities(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.memberships[c])
}

// HasUser reports whether any client joined community as userID.
func (r *Registry) HasUser(community, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, joinedAs := range r.communities[community] {
		if joinedAs == userID {
			return true
		}
	}
	return false
}

// Broadcast queues payload on every member of community. Delivery happens
// outside the lock on a membership snapshot; members that race with it may or
// may not receive the frame.
func (r *Registry) Broadcast(community string, payload []byte) (delivered, dropped int) {
	for _, c := range r.Members(community) {
		if c.Deliver(payload) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// Shutdown closes every attached client.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	clients := lo.Keys(r.clients)
	r.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
