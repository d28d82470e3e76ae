package realtime

import "sync"

// Client is one authenticated websocket connection.
//
// Send is never closed by the server so that concurrent broadcasters cannot
// panic; done signals shutdown instead. Close is idempotent.
type Client struct {
	ConnID string
	UserID string
	Send   chan []byte

	metrics   *Metrics
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(connID, userID string, sendBuffer int, metrics *Metrics) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Client{
		ConnID:  connID,
		UserID:  userID,
		Send:    make(chan []byte, sendBuffer),
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Enqueue queues frame without blocking. It reports false when the client
// is shutting down or its buffer is full; a full buffer is counted as a
// dropped frame.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- frame:
		return true
	default:
		c.metrics.droppedFrame()
		return false
	}
}
