// authority is the websocket transport to the remote control authority.
// Requests are written as they come, replies are read by a single goroutine
// and queued until the engine asks for them.
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkommoju/alcor-control-agent/internal/logger"
	"github.com/pkommoju/alcor-control-agent/internal/ondemand"
	"github.com/pkommoju/alcor-control-agent/pkg/state"
)

const pkgName = "Authority. "

const (
	stopped = iota
	connecting
	running
)

const (
	defaultTimeout        = 10 * time.Second
	defaultReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
	repliesQueueSize      = 1024
)

var (
	ErrAlreadyClosed = errors.New("authority connection already closed")
	ErrNotConnected  = errors.New("authority is not connected")
)

type Config struct {
	URL        string
	Token      string
	DeviceID   string
	DeviceName string
	Version    string
	// Handshake and write timeout
	Timeout time.Duration
	// First reconnect delay, doubled on each failed attempt
	ReconnectDelay time.Duration
}

type Client struct {
	sync.Mutex // guards ws writes, gorilla allows one concurrent writer
	state      state.Machine
	ws         *websocket.Conn
	cfg        Config
	dialer     websocket.Dialer
	replies    chan *ondemand.Reply
	closed     chan struct{}
	wg         sync.WaitGroup
}

// New connects to the authority and starts reading replies
func New(ctx context.Context, cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("authority url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("authority url: unsupported scheme %q", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}

	c := &Client{
		cfg: cfg,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Timeout,
		},
		replies: make(chan *ondemand.Reply, repliesQueueSize),
		closed:  make(chan struct{}),
	}

	c.state.Set(connecting)
	c.ws, err = c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.state.Set(running)

	c.wg.Add(1)
	go c.reader(c.ws)

	logger.Info().Println(pkgName, "connected to", cfg.URL)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}

	// Without these headers connection will be ignored silently
	headers.Set("authorization", c.cfg.Token)
	headers.Set("x-deviceid", c.cfg.DeviceID)
	headers.Set("x-devicename", c.cfg.DeviceName)
	headers.Set("x-agenttype", "Linux")
	headers.Set("x-agentversion", c.cfg.Version)

	ws, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, headers)
	if err != nil {
		var httpCode int
		if resp != nil {
			httpCode = resp.StatusCode
		}
		return nil, fmt.Errorf("dial %s: %w (HTTP: %d)", c.cfg.URL, err, httpCode)
	}

	return ws, nil
}

// Send writes the request and returns without waiting for a reply
func (c *Client) Send(req *ondemand.Request) error {
	data, err := json.Marshal(newRequestMessage(req, time.Now()))
	if err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()

	switch c.state.Get() {
	case stopped:
		return ondemand.ErrTransportClosed
	case connecting:
		return ErrNotConnected
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Next returns replies in arrival order
func (c *Client) Next(ctx context.Context) (*ondemand.Reply, error) {
	// Replies already queued are still delivered after Close
	select {
	case reply := <-c.replies:
		return reply, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ondemand.ErrTransportClosed
	case reply := <-c.replies:
		return reply, nil
	}
}

func (c *Client) reader(ws *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if c.state.Is(stopped) {
				return
			}
			logger.Warning().Println(pkgName, "read error:", err, ". Reconnecting...")
			ws.Close()

			ws = c.reconnect()
			if ws == nil {
				return
			}
			continue
		}

		c.dispatch(msg, time.Now())
	}
}

func (c *Client) dispatch(msg []byte, receivedAt time.Time) {
	msgtype, err := messageType(msg)
	if err != nil {
		logger.Warning().Println(pkgName, "invalid message:", err)
		return
	}
	if msgtype != replyType {
		logger.Debug().Println(pkgName, "ignoring message type", msgtype)
		return
	}

	reply, err := parseReply(msg, receivedAt)
	if err != nil {
		logger.Warning().Println(pkgName, err)
		if reply == nil {
			return
		}
	}

	select {
	case c.replies <- reply:
	case <-c.closed:
	}
}

// reconnect dials until success or Close. Returns nil when closed.
func (c *Client) reconnect() *websocket.Conn {
	c.state.Change(running, connecting)
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-c.closed:
			return nil
		case <-time.After(delay):
		}

		ws, err := c.dial(context.Background())
		if err != nil {
			logger.Warning().Println(pkgName, err)
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		c.Lock()
		if !c.state.Change(connecting, running) {
			c.Unlock()
			ws.Close()
			return nil
		}
		c.ws = ws
		c.Unlock()

		logger.Info().Println(pkgName, "reconnected to", c.cfg.URL)
		return ws
	}
}

// Close closes websocket connection to the authority and unblocks Next
func (c *Client) Close() error {
	if c.state.Swap(stopped) == stopped {
		return ErrAlreadyClosed
	}
	close(c.closed)

	c.Lock()
	// Cleanly close the connection by sending a close message
	err := c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		logger.Debug().Println(pkgName, "write close:", err)
	}
	c.ws.Close()
	c.Unlock()

	c.wg.Wait()
	return nil
}
