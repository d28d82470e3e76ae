// Command ws-smoke drives two clients through the presence protocol against
// a running server and exits non-zero on the first unexpected frame.
//
// It checks:
//   - greeting after a token-authenticated upgrade
//   - JOINED excludes the joiner, USER-JOINED reaches the peer
//   - an adjacent MOVE fans out to the peer only
//   - a diagonal MOVE is answered with MOVE-REJECTED
//   - USER-LEAVE on disconnect
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "plaza/shared/contracts/realtime/v1"
)

const maxReadBytes = 1 << 16

type smokeClient struct {
	name   string
	userID string
	conn   *websocket.Conn
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "", "Origin header to send (optional)")
		tokenA  = flag.String("token-a", os.Getenv("PLAZA_SMOKE_TOKEN_A"), "access token for client A")
		tokenB  = flag.String("token-b", os.Getenv("PLAZA_SMOKE_TOKEN_B"), "access token for client B (different user)")
		spaceID = flag.String("space", "", "space id to join")
		timeout = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if *tokenA == "" || *tokenB == "" || *spaceID == "" {
		fatalf("-token-a, -token-b and -space are required")
	}

	ctx := context.Background()
	a := mustConnect(ctx, "A", *wsURL, *tokenA, *origin, *timeout)
	defer closeWS(a.conn)
	b := mustConnect(ctx, "B", *wsURL, *tokenB, *origin, *timeout)
	defer closeWS(b.conn)
	if a.userID == b.userID {
		fatalf("tokens must belong to different users (both are %s)", a.userID)
	}
	if *verbose {
		fmt.Printf("connected: A=%s B=%s\n", a.userID, b.userID)
	}

	join := fmt.Sprintf(`{"type":%q,"payload":{"space_id":%q}}`, v1.TypeJoin, *spaceID)

	a.mustWrite(ctx, join, *timeout)
	var ja v1.JoinedPayload
	a.mustRead(ctx, v1.TypeJoined, &ja, *timeout)
	if slices.Contains(ja.UserIDs, a.userID) {
		fatalf("A: JOINED lists the joiner itself: %v", ja.UserIDs)
	}

	b.mustWrite(ctx, join, *timeout)
	var jb v1.JoinedPayload
	b.mustRead(ctx, v1.TypeJoined, &jb, *timeout)
	if !slices.Contains(jb.UserIDs, a.userID) {
		fatalf("B: JOINED %v does not list A (%s)", jb.UserIDs, a.userID)
	}
	var uj v1.UserJoinedPayload
	a.mustRead(ctx, v1.TypeUserJoined, &uj, *timeout)
	if uj.UserID != b.userID || uj.X != jb.Spawn.X || uj.Y != jb.Spawn.Y {
		fatalf("A: USER-JOINED %+v does not match B spawn %+v", uj, jb.Spawn)
	}

	step := adjacent(jb.Spawn)
	b.mustWrite(ctx, fmt.Sprintf(`{"type":%q,"payload":{"x":%d,"y":%d}}`, v1.TypeMove, step.X, step.Y), *timeout)
	var mv v1.MovedPayload
	a.mustRead(ctx, v1.TypeMoved, &mv, *timeout)
	if mv.UserID != b.userID || mv.X != step.X || mv.Y != step.Y {
		fatalf("A: MOVE %+v, want %s at %+v", mv, b.userID, step)
	}

	b.mustWrite(ctx, fmt.Sprintf(`{"type":%q,"payload":{"x":%d,"y":%d}}`, v1.TypeMove, step.X+1, step.Y+1), *timeout)
	var mr v1.MoveRejectedPayload
	b.mustRead(ctx, v1.TypeMoveRejected, &mr, *timeout)
	if mr.X != step.X || mr.Y != step.Y {
		fatalf("B: MOVE-REJECTED %+v, want position %+v", mr, step)
	}

	_ = b.conn.Close(websocket.StatusNormalClosure, "bye")
	var ul v1.UserLeavePayload
	a.mustRead(ctx, v1.TypeUserLeave, &ul, *timeout)
	if ul.UserID != b.userID {
		fatalf("A: USER-LEAVE for %s, want %s", ul.UserID, b.userID)
	}

	fmt.Println("ws-smoke: ok")
}

// adjacent picks a neighbour that stays on the grid for any map at least
// two cells wide or tall.
func adjacent(p v1.Point) v1.Point {
	if p.X > 0 {
		return v1.Point{X: p.X - 1, Y: p.Y}
	}
	if p.Y > 0 {
		return v1.Point{X: p.X, Y: p.Y - 1}
	}
	return v1.Point{X: p.X + 1, Y: p.Y}
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("scheme must be ws or wss")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, token, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, _ := url.Parse(wsURL)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fatalf("%s: dial failed (status %d): %v", name, status, err)
	}
	conn.SetReadLimit(maxReadBytes)

	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("%s: reading greeting: %v", name, err)
	}
	uid, ok := strings.CutPrefix(string(data), v1.Greeting+" ")
	if !ok || uid == "" {
		fatalf("%s: unexpected greeting %q", name, data)
	}
	return &smokeClient{name: name, userID: uid, conn: conn}
}

func (c *smokeClient) mustWrite(parent context.Context, frame string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		fatalf("%s: write: %v", c.name, err)
	}
}

// mustRead reads the next frame and requires it to be wantType.
func (c *smokeClient) mustRead(parent context.Context, wantType string, dst any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		fatalf("%s: waiting for %s: %v", c.name, wantType, err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		fatalf("%s: bad frame %q: %v", c.name, data, err)
	}
	if env.Type != wantType {
		fatalf("%s: got %s (%s), want %s", c.name, env.Type, env.Payload, wantType)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		fatalf("%s: bad %s payload: %v", c.name, wantType, err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ws-smoke: "+format+"\n", args...)
	os.Exit(1)
}
