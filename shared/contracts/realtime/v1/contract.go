// Package v1 is the presence wire protocol spoken over the /ws socket.
//
// Every frame after the plaintext greeting is a JSON envelope
// {"type": ..., "payload": {...}}. Inbound decoding is strict: unknown
// fields, unknown types and malformed payloads are all rejected with
// field-level details so the server can report them before closing.
package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Greeting prefixes the first, non-JSON frame: "connected <user_id>".
const Greeting = "connected"

// Client to server.
const (
	TypeJoin = "JOIN"
	TypeMove = "MOVE"
)

// Server to client.
const (
	TypeJoined       = "JOINED"
	TypeUserJoined   = "USER-JOINED"
	TypeMoved        = "MOVE"
	TypeMoveRejected = "MOVE-REJECTED"
	TypeUserLeave    = "USER-LEAVE"
	TypeError        = "ERROR"
)

const MaxSpaceIDLen = 64

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type JoinPayload struct {
	SpaceID string `json:"space_id"`
}

type movePayload struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

type JoinedPayload struct {
	Spawn   Point    `json:"spawn"`
	UserIDs []string `json:"user_ids"`
}

type UserJoinedPayload struct {
	UserID string `json:"user_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type MovedPayload struct {
	UserID string `json:"user_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type MoveRejectedPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type UserLeavePayload struct {
	UserID string `json:"user_id"`
}

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
}

// Inbound is a decoded client message. Exactly one of Join and Move is
// meaningful, selected by Type.
type Inbound struct {
	Type string
	Join JoinPayload
	Move Point
}

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Details []Detail
}

func (e *DecodeError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return "invalid envelope: " + strings.Join(parts, "; ")
}

func decodeErr(field, format string, args ...any) *DecodeError {
	return &DecodeError{Details: []Detail{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}

func strictUnmarshal(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data")
	}
	return nil
}

// DecodeInbound parses one client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return Inbound{}, decodeErr("envelope", "%v", err)
	}
	if len(bytes.TrimSpace(env.Payload)) == 0 || bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null")) {
		return Inbound{}, decodeErr("payload", "is required")
	}

	switch env.Type {
	case TypeJoin:
		var p JoinPayload
		if err := strictUnmarshal(env.Payload, &p); err != nil {
			return Inbound{}, decodeErr("payload", "%v", err)
		}
		p.SpaceID = strings.TrimSpace(p.SpaceID)
		if p.SpaceID == "" {
			return Inbound{}, decodeErr("payload.space_id", "is required")
		}
		if len(p.SpaceID) > MaxSpaceIDLen {
			return Inbound{}, decodeErr("payload.space_id", "must be at most %d characters", MaxSpaceIDLen)
		}
		return Inbound{Type: TypeJoin, Join: p}, nil

	case TypeMove:
		var p movePayload
		if err := strictUnmarshal(env.Payload, &p); err != nil {
			return Inbound{}, decodeErr("payload", "%v", err)
		}
		de := &DecodeError{}
		if p.X == nil {
			de.Details = append(de.Details, Detail{Field: "payload.x", Message: "is required"})
		}
		if p.Y == nil {
			de.Details = append(de.Details, Detail{Field: "payload.y", Message: "is required"})
		}
		if len(de.Details) > 0 {
			return Inbound{}, de
		}
		return Inbound{Type: TypeMove, Move: Point{X: *p.X, Y: *p.Y}}, nil

	case "":
		return Inbound{}, decodeErr("type", "is required")
	default:
		return Inbound{}, decodeErr("type", "unsupported type %q", env.Type)
	}
}

// Encode renders an outbound envelope.
func Encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

// MustEncode is Encode for payload types that cannot fail to marshal.
func MustEncode(typ string, payload any) []byte {
	b, err := Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return b
}
