package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/recapture/internal/logger"
)

// ErrNotConnected reports that no identified connection is available.
var ErrNotConnected = errors.New("not connected to obs")

// ErrAuthRequired reports that the host demands a password none was
// configured for.
var ErrAuthRequired = errors.New("obs requires authentication but no password is configured")

// RequestError is a request the host rejected.
type RequestError struct {
	Type    string
	Code    int
	Comment string
}

func (e *RequestError) Error() string {
	if e.Comment != "" {
		return fmt.Sprintf("obs request %s failed: %s (code %d)", e.Type, e.Comment, e.Code)
	}
	return fmt.Sprintf("obs request %s failed with code %d", e.Type, e.Code)
}

const (
	handshakeTimeout   = 10 * time.Second
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Client speaks obs-websocket protocol 5.x. One read pump per connection
// routes responses to waiting requests and reduces host events to the typed
// stream behind Events.
type Client struct {
	url      string
	password string
	log      *zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	pending   map[string]chan responseData
	done      chan struct{}

	// gorilla/websocket allows one concurrent writer per connection.
	writeMu sync.Mutex

	events chan Event
}

// NewClient creates a client for the given obs-websocket URL. The password
// may be empty when the host has authentication disabled.
func NewClient(url, password string) *Client {
	return &Client{
		url:      url,
		password: password,
		log:      logger.WithComponent("obs"),
		pending:  make(map[string]chan responseData),
		events:   make(chan Event, 16),
	}
}

// Events returns the typed host event stream. The channel is never closed;
// it goes quiet when the client shuts down.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether an identified connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the host and performs the Hello/Identify handshake. On
// success a read pump owns the connection until it drops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial obs at %s: %w", c.url, err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.pending = make(map[string]chan responseData)
	c.done = done
	c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("Connected to obs")
	go c.readPump(conn, done)
	return nil
}

// handshake reads Hello, answers Identify, and waits for Identified.
func (c *Client) handshake(conn *websocket.Conn) error {
	deadline := time.Now().Add(handshakeTimeout)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	var hello helloData
	op, err := readFrame(conn, &hello)
	if err != nil {
		return fmt.Errorf("failed to read hello: %w", err)
	}
	if op != opHello {
		return fmt.Errorf("expected hello, got opcode %d", op)
	}

	identify := identifyData{
		RPCVersion:         rpcVersion,
		EventSubscriptions: subGeneral | subConfig | subScenes | subOutputs,
	}
	if hello.Authentication != nil {
		if c.password == "" {
			return ErrAuthRequired
		}
		identify.Authentication = authToken(c.password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}

	raw, err := json.Marshal(identify)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(envelope{Op: opIdentify, D: raw}); err != nil {
		return fmt.Errorf("failed to send identify: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})

	var identified identifiedData
	op, err = readFrame(conn, &identified)
	if err != nil {
		return fmt.Errorf("identify rejected: %w", err)
	}
	if op != opIdentified {
		return fmt.Errorf("expected identified, got opcode %d", op)
	}

	c.log.Debug().
		Str("obs_websocket", hello.OBSWebSocketVersion).
		Int("rpc", identified.NegotiatedRPCVersion).
		Msg("Identified with obs")
	return nil
}

func readFrame(conn *websocket.Conn, out any) (int, error) {
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		return 0, err
	}
	if out != nil && len(env.D) > 0 {
		if err := json.Unmarshal(env.D, out); err != nil {
			return env.Op, err
		}
	}
	return env.Op, nil
}

// readPump routes frames until the connection drops.
func (c *Client) readPump(conn *websocket.Conn, done chan struct{}) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.teardown(conn, done, err)
			return
		}

		switch env.Op {
		case opRequestResponse:
			var resp responseData
			if err := json.Unmarshal(env.D, &resp); err != nil {
				c.log.Warn().Err(err).Msg("Malformed request response")
				continue
			}
			c.mu.Lock()
			ch := c.pending[resp.RequestID]
			delete(c.pending, resp.RequestID)
			c.mu.Unlock()
			if ch != nil {
				ch <- resp
			}

		case opEvent:
			var ev eventData
			if err := json.Unmarshal(env.D, &ev); err != nil {
				c.log.Warn().Err(err).Msg("Malformed event frame")
				continue
			}
			typed, ok := parseEvent(ev)
			if !ok {
				c.log.Debug().Str("event_type", ev.EventType).Msg("Ignoring host event")
				continue
			}
			c.emit(typed)
		}
	}
}

// teardown cleans up after a dropped connection. Stale pumps from an already
// replaced connection do nothing.
func (c *Client) teardown(conn *websocket.Conn, done chan struct{}, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = nil
	c.connected = false
	pending := c.pending
	c.pending = make(map[string]chan responseData)
	c.done = nil
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	conn.Close()
	close(done)

	if websocket.IsUnexpectedCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Warn().Err(cause).Msg("Lost connection to obs")
	} else {
		c.log.Info().Msg("Disconnected from obs")
	}
	c.emit(Event{Type: EventDisconnected})
}

// Close tears the connection down deliberately.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	// The read pump notices the close and finishes the teardown.
	return conn.Close()
}

// Run keeps the client connected until ctx is done, reconnecting with capped
// exponential backoff. Every successful identify emits EventConnected so
// consumers can resynchronize.
func (c *Client) Run(ctx context.Context) {
	delay := reconnectBaseDelay
	for {
		err := c.Connect(ctx)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("Connection to obs failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		delay = reconnectBaseDelay
		c.emit(Event{Type: EventConnected})

		c.mu.Lock()
		done := c.done
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-done:
			// Dropped; loop around and reconnect.
		}
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Debug().Str("event", ev.Type.String()).Msg("Event buffer full, dropping")
	}
}

// send writes one frame.
func (c *Client) send(op int, d any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(envelope{Op: op, D: raw})
}

// request performs one request/response round trip.
func (c *Client) request(ctx context.Context, reqType string, payload any, out any) error {
	id := uuid.NewString()
	ch := make(chan responseData, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	err := c.send(opRequest, requestData{
		RequestType: reqType,
		RequestID:   id,
		RequestData: payload,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if !resp.RequestStatus.Result {
			return &RequestError{
				Type:    reqType,
				Code:    resp.RequestStatus.Code,
				Comment: resp.RequestStatus.Comment,
			}
		}
		if out != nil && len(resp.ResponseData) > 0 {
			if err := json.Unmarshal(resp.ResponseData, out); err != nil {
				return fmt.Errorf("failed to parse %s response: %w", reqType, err)
			}
		}
		return nil
	}
}

// Version returns host version information.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	var out Version
	if err := c.request(ctx, "GetVersion", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentProgramScene returns the name of the scene currently on program.
func (c *Client) CurrentProgramScene(ctx context.Context) (string, error) {
	var out struct {
		CurrentProgramSceneName string `json:"currentProgramSceneName"`
	}
	if err := c.request(ctx, "GetCurrentProgramScene", nil, &out); err != nil {
		return "", err
	}
	return out.CurrentProgramSceneName, nil
}

// SceneItems lists the items of a scene.
func (c *Client) SceneItems(ctx context.Context, scene string) ([]SceneItem, error) {
	var out struct {
		SceneItems []SceneItem `json:"sceneItems"`
	}
	err := c.request(ctx, "GetSceneItemList", map[string]any{"sceneName": scene}, &out)
	if err != nil {
		return nil, err
	}
	return out.SceneItems, nil
}

// InputSettings reads an input's settings blob.
func (c *Client) InputSettings(ctx context.Context, input string) (Settings, error) {
	var out struct {
		InputSettings Settings `json:"inputSettings"`
	}
	err := c.request(ctx, "GetInputSettings", map[string]any{"inputName": input}, &out)
	if err != nil {
		return nil, err
	}
	return out.InputSettings, nil
}

// SetInputSettings applies a settings blob onto an input. The blob is merged
// over the input's current settings, the same way the host applies updates
// internally, so callers pass the full blob they read.
func (c *Client) SetInputSettings(ctx context.Context, input string, settings Settings) error {
	return c.request(ctx, "SetInputSettings", map[string]any{
		"inputName":     input,
		"inputSettings": settings,
		"overlay":       true,
	}, nil)
}

// Inputs lists all inputs known to the host.
func (c *Client) Inputs(ctx context.Context) ([]Input, error) {
	var out struct {
		Inputs []Input `json:"inputs"`
	}
	if err := c.request(ctx, "GetInputList", nil, &out); err != nil {
		return nil, err
	}
	return out.Inputs, nil
}
