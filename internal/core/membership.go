package core

type roomSet struct {
	order []string
	index map[string]struct{}
}

// Membership tracks which user ids are present in which room, in join order.
// Like Registry it relies on the Hub lock.
type Membership struct {
	rooms    map[string]*roomSet
	userRoom map[string]string
}

// NewMembership constructs an empty membership table.
func NewMembership() *Membership {
	return &Membership{
		rooms:    make(map[string]*roomSet),
		userRoom: make(map[string]string),
	}
}

// Join adds the user to the room. Returns false if the user was already there.
// A user present in another room is moved, a user is never in two rooms.
func (m *Membership) Join(room, userID string) bool {
	if current, ok := m.userRoom[userID]; ok {
		if current == room {
			return false
		}
		m.Leave(current, userID)
	}

	set, ok := m.rooms[room]
	if !ok {
		set = &roomSet{index: make(map[string]struct{})}
		m.rooms[room] = set
	}
	set.index[userID] = struct{}{}
	set.order = append(set.order, userID)
	m.userRoom[userID] = room
	return true
}

// Leave removes the user from the room. Returns false if the user was absent.
func (m *Membership) Leave(room, userID string) bool {
	set, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, present := set.index[userID]; !present {
		return false
	}

	delete(set.index, userID)
	for i, id := range set.order {
		if id == userID {
			set.order = append(set.order[:i], set.order[i+1:]...)
			break
		}
	}
	if m.userRoom[userID] == room {
		delete(m.userRoom, userID)
	}
	if len(set.order) == 0 {
		delete(m.rooms, room)
	}
	return true
}

// Members returns a copy of the room's user ids in join order.
func (m *Membership) Members(room string) []string {
	set, ok := m.rooms[room]
	if !ok {
		return nil
	}
	out := make([]string, len(set.order))
	copy(out, set.order)
	return out
}

// Contains reports whether the user is present in the room.
func (m *Membership) Contains(room, userID string) bool {
	set, ok := m.rooms[room]
	if !ok {
		return false
	}
	_, present := set.index[userID]
	return present
}

// RoomOf returns the room the user is present in.
func (m *Membership) RoomOf(userID string) (string, bool) {
	room, ok := m.userRoom[userID]
	return room, ok
}

// Rooms returns the number of non-empty rooms.
func (m *Membership) Rooms() int {
	return len(m.rooms)
}
