package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"plaza/cmd/internal/auth/api"
	"plaza/cmd/internal/world"
	v1 "plaza/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const wsCloseGrace = 1 * time.Second

// SpaceDirectory resolves a space id to its grid dimensions.
type SpaceDirectory interface {
	Dimensions(ctx context.Context, spaceID string) (width, height int, err error)
}

// WSGateway is the /ws entrypoint. It authenticates the upgrade with an
// access token, then routes JOIN and MOVE frames into the Registry.
type WSGateway struct {
	log      *slog.Logger
	cfg      Config
	verifier api.AccessVerifier
	spaces   SpaceDirectory
	registry *Registry
	metrics  *Metrics
	now      func() time.Time

	// websocket.Accept authorizes same-host origins on its own; these
	// extend it to the configured cross-origin hosts.
	originPatterns []string
}

func NewWSGateway(log *slog.Logger, cfg Config, verifier api.AccessVerifier, spaces SpaceDirectory, registry *Registry, metrics *Metrics) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	return &WSGateway{
		log:            log,
		cfg:            cfg,
		verifier:       verifier,
		spaces:         spaces,
		registry:       registry,
		metrics:        metrics,
		now:            time.Now,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := g.verifier.VerifyAccess(r.URL.Query().Get("token"), g.now())
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.originPatterns})
	if err != nil {
		g.log.Info("ws.accept.fail", "err", err, "origin", r.Header.Get("Origin"))
		return
	}
	conn.SetReadLimit(g.cfg.MaxFrameBytes)

	s := &wsSession{
		g:      g,
		conn:   conn,
		client: NewClient(uuid.NewString(), claims.UserID(), g.cfg.SendBuffer, g.metrics),
	}
	g.metrics.connOpened()
	defer g.metrics.connClosed()
	s.run(r.Context())
}

// wsSession is the per-connection state. room is only touched by the
// read loop and the final shutdown, which runs on the same goroutine.
type wsSession struct {
	g      *WSGateway
	conn   *websocket.Conn
	client *Client
	room   *Room

	closeOnce sync.Once
}

func (s *wsSession) run(parent context.Context) {
	g, client := s.g, s.client
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := g.log.With("conn_id", client.ConnID, "user_id", client.UserID)

	if err := s.write(ctx, []byte(v1.Greeting+" "+client.UserID)); err != nil {
		log.Info("ws.greeting.fail", "err", err)
		_ = s.conn.Close(websocket.StatusAbnormalClosure, "write failed")
		return
	}
	log.Info("ws.open")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, log)
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		s.heartbeat(ctx, log)
	}()

	code, reason := s.readLoop(ctx, log)
	s.shutdown(code, reason, writerDone)
	cancel()

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	log.Info("ws.close", "code", code, "reason", reason)
}

// readLoop returns the close status once the connection should end.
func (s *wsSession) readLoop(ctx context.Context, log *slog.Logger) (websocket.StatusCode, string) {
	g, client := s.g, s.client
	rl := NewRateLimiter(g.cfg.RatePerSecond, g.cfg.RateBurst)

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if code := classifyReadErr(err); code != 0 {
				return code, "peer gone"
			}
			log.Info("ws.read.fail", "err", err)
			return websocket.StatusAbnormalClosure, "read failed"
		}
		if !rl.Allow(g.now()) {
			s.sendError("rate limited", nil)
			return websocket.StatusPolicyViolation, "rate limited"
		}
		if typ != websocket.MessageText {
			s.sendError("invalid message", []v1.Detail{{Field: "frame", Message: "must be a text frame"}})
			return websocket.StatusUnsupportedData, "text frames only"
		}

		in, err := v1.DecodeInbound(data)
		if err != nil {
			var de *v1.DecodeError
			if errors.As(err, &de) {
				s.sendError("invalid message", de.Details)
			} else {
				s.sendError("invalid message", nil)
			}
			return websocket.StatusPolicyViolation, "invalid message"
		}
		g.metrics.received(in.Type)

		switch in.Type {
		case v1.TypeJoin:
			if code, reason, ok := s.onJoin(ctx, log, in.Join.SpaceID); !ok {
				return code, reason
			}
		case v1.TypeMove:
			if s.room == nil {
				s.sendError(ErrNotJoined.Error(), nil)
				continue
			}
			if _, _, err := g.registry.Move(s.room, client, in.Move); errors.Is(err, ErrNotJoined) {
				// Evicted by a newer connection of the same user.
				s.room = nil
				s.sendError(ErrNotJoined.Error(), nil)
			}
		}
	}
}

func (s *wsSession) onJoin(ctx context.Context, log *slog.Logger, spaceID string) (websocket.StatusCode, string, bool) {
	width, height, err := s.g.spaces.Dimensions(ctx, spaceID)
	if err != nil {
		if errors.Is(err, world.ErrSpaceNotFound) {
			s.sendError("space not found", []v1.Detail{{Field: "payload.space_id", Message: "unknown space"}})
			return websocket.StatusPolicyViolation, "space not found", false
		}
		log.Error("ws.join.lookup.fail", "space_id", spaceID, "err", err)
		s.sendError("internal error", nil)
		return websocket.StatusInternalError, "space lookup failed", false
	}
	if s.room != nil {
		s.g.registry.Leave(s.room, s.client)
		s.room = nil
	}
	s.room, _ = s.g.registry.Join(spaceID, width, height, s.client)
	return 0, "", true
}

func (s *wsSession) sendError(msg string, details []v1.Detail) {
	s.client.Enqueue(v1.MustEncode(v1.TypeError, v1.ErrorPayload{Message: msg, Details: details}))
}

// writeLoop is the only writer after the greeting. Once the client is
// closed it flushes whatever is still queued, so an ERROR enqueued just
// before shutdown reaches the peer ahead of the close frame.
func (s *wsSession) writeLoop(ctx context.Context, cancel context.CancelFunc, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.client.Send:
			if err := s.write(ctx, frame); err != nil {
				log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				s.client.Close()
				cancel()
				return
			}
		case <-s.client.Done():
			s.flush(ctx)
			// Ends the read loop when the close came from elsewhere, such
			// as eviction by a newer connection of the same user.
			cancel()
			return
		}
	}
}

func (s *wsSession) flush(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for {
		select {
		case frame := <-s.client.Send:
			if err := s.write(ctx, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *wsSession) write(ctx context.Context, frame []byte) error {
	wctx, cancel := context.WithTimeout(ctx, s.g.cfg.WriteTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, frame)
}

func (s *wsSession) heartbeat(ctx context.Context, log *slog.Logger) {
	t := time.NewTicker(s.g.cfg.PingInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.client.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, s.g.cfg.PingTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			log.Info("ws.ping.fail", "failures", failures, "err", err)
			if failures >= s.g.cfg.MaxPingFailures {
				_ = s.conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

// shutdown leaves the room, lets the writer drain, then closes the socket.
// It is safe to call more than once.
func (s *wsSession) shutdown(code websocket.StatusCode, reason string, writerDone <-chan struct{}) {
	s.closeOnce.Do(func() {
		s.g.registry.Leave(s.room, s.client)
		s.room = nil
		s.client.Close()

		select {
		case <-writerDone:
		case <-time.After(s.g.cfg.WriteTimeout + wsCloseGrace):
		}
		_ = s.conn.Close(code, reason)
	})
}

// classifyReadErr maps errors that mean the peer or server already ended
// the connection to a close status. It returns 0 for anything unexpected.
func classifyReadErr(err error) websocket.StatusCode {
	if websocket.CloseStatus(err) != -1 {
		return websocket.StatusNormalClosure
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return websocket.StatusGoingAway
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return websocket.StatusAbnormalClosure
	}
	return 0
}

// deriveOriginPatterns turns allowed origins into the host patterns that
// websocket.Accept matches against.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHost(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}
