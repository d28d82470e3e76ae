package realtime

import (
	"log/slog"
	"sync"

	v1 "plaza/shared/contracts/realtime/v1"
)

// Registry owns every live room, keyed by space id. Rooms are created on
// first join and dropped once their last member leaves. A user holds at
// most one seat across all rooms: joining anywhere vacates the previous one.
//
// Lock order is registry then room; room methods never call back into the
// registry.
type Registry struct {
	log     *slog.Logger
	metrics *Metrics
	spawn   SpawnFunc

	mu    sync.Mutex
	rooms map[string]*Room
	seats map[string]seat
}

// seat is where a user currently stands.
type seat struct {
	room   *Room
	client *Client
}

type RegistryOption func(*Registry)

// WithSpawn overrides the spawn picker.
func WithSpawn(fn SpawnFunc) RegistryOption {
	return func(r *Registry) { r.spawn = fn }
}

func NewRegistry(log *slog.Logger, metrics *Metrics, opts ...RegistryOption) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:     log,
		metrics: metrics,
		spawn:   RandomSpawn,
		rooms:   make(map[string]*Room),
		seats:   make(map[string]seat),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Join seats c in spaceID, creating the room with the given dimensions if it
// does not exist yet, and returns the room and spawn point. If c's user is
// seated in another room, that seat is vacated first; a different connection
// holding it is closed.
func (r *Registry) Join(spaceID string, width, height int, c *Client) (*Room, v1.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.seats[c.UserID]; ok && prev.room.ID != spaceID {
		r.vacateLocked(prev, c)
	}

	room, ok := r.rooms[spaceID]
	if !ok {
		room = newRoom(spaceID, width, height)
		r.rooms[spaceID] = room
		r.metrics.setRooms(len(r.rooms))
	}

	// A same-room seat held by another connection is evicted inside join.
	spawn := r.spawn(room.width, room.height)
	room.join(c, spawn)
	r.seats[c.UserID] = seat{room: room, client: c}
	r.log.Debug("ws.room.join", "space_id", spaceID, "user_id", c.UserID, "conn_id", c.ConnID)
	return room, spawn
}

// vacateLocked removes a seat on behalf of joiner's join elsewhere. Peers
// see USER-LEAVE; a connection other than joiner is closed.
func (r *Registry) vacateLocked(s seat, joiner *Client) {
	removed, empty := s.room.leave(s.client)
	delete(r.seats, s.client.UserID)
	if removed {
		r.log.Debug("ws.room.vacate", "space_id", s.room.ID, "user_id", s.client.UserID, "conn_id", s.client.ConnID)
	}
	if s.client != joiner {
		s.client.Close()
	}
	if empty {
		r.reapLocked(s.room)
	}
}

// Move forwards to the room. It exists so the gateway never touches room
// internals directly.
func (r *Registry) Move(room *Room, c *Client, to v1.Point) (v1.Point, bool, error) {
	pos, ok, err := room.move(c, to)
	if err == nil && !ok {
		r.metrics.moveRejected()
	}
	return pos, ok, err
}

// Leave removes c from room. Calling it again, or for a connection that was
// evicted by a newer one, does nothing.
func (r *Registry) Leave(room *Room, c *Client) {
	if room == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed, empty := room.leave(c)
	if removed {
		r.log.Debug("ws.room.leave", "space_id", room.ID, "user_id", c.UserID, "conn_id", c.ConnID)
	}
	if s, ok := r.seats[c.UserID]; ok && s.client == c {
		delete(r.seats, c.UserID)
	}
	if empty {
		r.reapLocked(room)
	}
}

func (r *Registry) reapLocked(room *Room) {
	if r.rooms[room.ID] != room {
		return
	}
	if room.Len() == 0 {
		delete(r.rooms, room.ID)
	}
	r.metrics.setRooms(len(r.rooms))
}

// Room returns the live room for spaceID, if any.
func (r *Registry) Room(spaceID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[spaceID]
	return room, ok
}

func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
