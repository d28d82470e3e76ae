package realtime

import (
	"errors"
	"sync"

	v1 "plaza/shared/contracts/realtime/v1"
)

// ErrNotJoined is returned for a MOVE from a client that holds no position
// in the room.
var ErrNotJoined = errors.New("not joined")

type member struct {
	client *Client
	pos    v1.Point
}

// Room is the live presence state of one space. Positions and membership
// are mutated under mu; frames are built under the lock but delivered after
// it is released so a slow peer never holds up the room.
type Room struct {
	ID     string
	width  int
	height int

	mu      sync.Mutex
	members map[string]*member
}

func newRoom(id string, width, height int) *Room {
	return &Room{ID: id, width: width, height: height, members: make(map[string]*member)}
}

type delivery struct {
	to    *Client
	frame []byte
}

func deliver(out []delivery) {
	for _, d := range out {
		d.to.Enqueue(d.frame)
	}
}

func (rm *Room) inBounds(p v1.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < rm.width && p.Y < rm.height
}

// join seats c at spawn. The joiner gets JOINED with everyone else present;
// every other member gets USER-JOINED. A previous connection of the same
// user is evicted first: peers see USER-LEAVE and the stale client closes.
func (rm *Room) join(c *Client, spawn v1.Point) {
	var out []delivery
	var evicted *Client

	rm.mu.Lock()
	if old, ok := rm.members[c.UserID]; ok && old.client != c {
		delete(rm.members, c.UserID)
		evicted = old.client
		leave := v1.MustEncode(v1.TypeUserLeave, v1.UserLeavePayload{UserID: c.UserID})
		for _, m := range rm.members {
			out = append(out, delivery{m.client, leave})
		}
	}

	others := make([]string, 0, len(rm.members))
	joined := v1.MustEncode(v1.TypeUserJoined, v1.UserJoinedPayload{UserID: c.UserID, X: spawn.X, Y: spawn.Y})
	for uid, m := range rm.members {
		if uid == c.UserID {
			continue
		}
		others = append(others, uid)
		out = append(out, delivery{m.client, joined})
	}
	rm.members[c.UserID] = &member{client: c, pos: spawn}
	rm.mu.Unlock()

	if evicted != nil {
		evicted.Close()
	}
	c.Enqueue(v1.MustEncode(v1.TypeJoined, v1.JoinedPayload{Spawn: spawn, UserIDs: others}))
	deliver(out)
}

// move applies a one-step move. Accepted moves fan out MOVE to peers;
// rejected ones answer the mover alone with MOVE-REJECTED carrying the
// unchanged position.
func (rm *Room) move(c *Client, to v1.Point) (v1.Point, bool, error) {
	rm.mu.Lock()
	m, ok := rm.members[c.UserID]
	if !ok || m.client != c {
		rm.mu.Unlock()
		return v1.Point{}, false, ErrNotJoined
	}
	if !rm.inBounds(to) || manhattan(m.pos, to) != 1 {
		cur := m.pos
		rm.mu.Unlock()
		c.Enqueue(v1.MustEncode(v1.TypeMoveRejected, v1.MoveRejectedPayload{X: cur.X, Y: cur.Y}))
		return cur, false, nil
	}
	m.pos = to
	frame := v1.MustEncode(v1.TypeMoved, v1.MovedPayload{UserID: c.UserID, X: to.X, Y: to.Y})
	out := make([]delivery, 0, len(rm.members))
	for uid, peer := range rm.members {
		if uid != c.UserID {
			out = append(out, delivery{peer.client, frame})
		}
	}
	rm.mu.Unlock()

	deliver(out)
	return to, true, nil
}

// leave removes c and tells the remaining members. It is a no-op when c no
// longer owns its user's seat, so a double disconnect or an evicted
// connection never emits a second USER-LEAVE. It reports whether the room
// is now empty.
func (rm *Room) leave(c *Client) (removed, empty bool) {
	rm.mu.Lock()
	m, ok := rm.members[c.UserID]
	if !ok || m.client != c {
		empty = len(rm.members) == 0
		rm.mu.Unlock()
		return false, empty
	}
	delete(rm.members, c.UserID)
	frame := v1.MustEncode(v1.TypeUserLeave, v1.UserLeavePayload{UserID: c.UserID})
	out := make([]delivery, 0, len(rm.members))
	for _, peer := range rm.members {
		out = append(out, delivery{peer.client, frame})
	}
	empty = len(rm.members) == 0
	rm.mu.Unlock()

	deliver(out)
	return true, empty
}

// Position returns userID's current cell.
func (rm *Room) Position(userID string) (v1.Point, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	m, ok := rm.members[userID]
	if !ok {
		return v1.Point{}, false
	}
	return m.pos, true
}

func (rm *Room) Len() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

func manhattan(a, b v1.Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
