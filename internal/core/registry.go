package core

// Identity is who a connection speaks for.
type Identity struct {
	UserID      string
	DisplayName string
}

// Binding ties a connection to an identity and the room it joined.
type Binding struct {
	Identity Identity
	Room     string
}

type connEntry struct {
	client  *Client
	binding *Binding
}

// Registry tracks live connections and the identity bound to each of them.
// It is not safe for concurrent use on its own; the Hub guards it together
// with the Membership table under a single lock.
type Registry struct {
	conns map[string]*connEntry
	users map[string]string // user id -> connection id
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*connEntry),
		users: make(map[string]string),
	}
}

// Open records a freshly accepted connection. Returns false if the id is taken.
func (r *Registry) Open(c *Client) bool {
	if _, exists := r.conns[c.ID]; exists {
		return false
	}
	r.conns[c.ID] = &connEntry{client: c}
	return true
}

// Has reports whether the connection is open.
func (r *Registry) Has(connID string) bool {
	_, ok := r.conns[connID]
	return ok
}

// Close forgets the connection, returning its binding if it still had one.
func (r *Registry) Close(connID string) (Binding, bool) {
	b, ok := r.Unbind(connID)
	delete(r.conns, connID)
	return b, ok
}

// Bind attaches an identity and room to the connection.
// A connection that already carries an identity is left untouched.
func (r *Registry) Bind(connID string, id Identity, room string) error {
	entry, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if entry.binding != nil {
		return ErrAlreadyBound
	}
	entry.binding = &Binding{Identity: id, Room: room}
	r.users[id.UserID] = connID
	return nil
}

// Unbind removes the binding and returns it. Unbinding a connection that was
// never bound is a no-op.
func (r *Registry) Unbind(connID string) (Binding, bool) {
	entry, ok := r.conns[connID]
	if !ok || entry.binding == nil {
		return Binding{}, false
	}
	b := *entry.binding
	entry.binding = nil
	if r.users[b.Identity.UserID] == connID {
		delete(r.users, b.Identity.UserID)
	}
	return b, true
}

// Lookup returns the binding of a connection.
func (r *Registry) Lookup(connID string) (Binding, bool) {
	entry, ok := r.conns[connID]
	if !ok || entry.binding == nil {
		return Binding{}, false
	}
	return *entry.binding, true
}

// UserConn returns the connection currently bound to the user id.
func (r *Registry) UserConn(userID string) (*Client, Binding, bool) {
	connID, ok := r.users[userID]
	if !ok {
		return nil, Binding{}, false
	}
	entry := r.conns[connID]
	if entry == nil || entry.binding == nil {
		return nil, Binding{}, false
	}
	return entry.client, *entry.binding, true
}

// Stats returns the number of open and bound connections.
func (r *Registry) Stats() (open, bound int) {
	return len(r.conns), len(r.users)
}
