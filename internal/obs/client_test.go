package obs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/recapture/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error", false)
	os.Exit(m.Run())
}

// fakeHostServer speaks just enough obs-websocket 5.x for client tests:
// Hello/Identify with optional auth, a handful of requests, and test-driven
// event pushes.
type fakeHostServer struct {
	t         *testing.T
	password  string
	salt      string
	challenge string

	mu       sync.Mutex
	conn     *websocket.Conn
	scene    string
	settings Settings
	applied  []map[string]any
}

func startFakeHost(t *testing.T, password string) (*fakeHostServer, string) {
	f := &fakeHostServer{
		t:         t,
		password:  password,
		salt:      "PZVbYpvAnZut2SS6JNJytDm9",
		challenge: "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY=",
		scene:     "Gameplay",
		settings:  Settings{"window": "stale", "show_cursor": true},
	}
	ts := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(ts.Close)
	return f, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (f *fakeHostServer) handler(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	hello := map[string]any{"obsWebSocketVersion": "5.3.4", "rpcVersion": 1}
	if f.password != "" {
		hello["authentication"] = map[string]string{"challenge": f.challenge, "salt": f.salt}
	}
	if err := f.write(conn, opHello, hello); err != nil {
		return
	}

	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		return
	}
	if env.Op != opIdentify {
		f.t.Errorf("first client frame op = %d, want %d", env.Op, opIdentify)
		return
	}
	var identify identifyData
	if err := json.Unmarshal(env.D, &identify); err != nil {
		f.t.Errorf("malformed identify: %v", err)
		return
	}
	if f.password != "" && identify.Authentication != authToken(f.password, f.salt, f.challenge) {
		return // hang up, as a real host does on bad auth
	}
	if err := f.write(conn, opIdentified, map[string]int{"negotiatedRpcVersion": 1}); err != nil {
		return
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Op != opRequest {
			continue
		}
		var req requestData
		if err := json.Unmarshal(env.D, &req); err != nil {
			continue
		}
		f.respond(conn, req)
	}
}

func (f *fakeHostServer) respond(conn *websocket.Conn, req requestData) {
	status := map[string]any{"result": true, "code": 100}
	var data any

	switch req.RequestType {
	case "GetVersion":
		data = map[string]any{"obsVersion": "30.1.2", "obsWebSocketVersion": "5.3.4", "platform": "linux"}
	case "GetCurrentProgramScene":
		f.mu.Lock()
		data = map[string]any{"currentProgramSceneName": f.scene}
		f.mu.Unlock()
	case "GetSceneItemList":
		data = map[string]any{"sceneItems": []map[string]any{
			{"sceneItemId": 1, "sourceName": "Game Capture", "inputKind": "xcomposite_input"},
		}}
	case "GetInputSettings":
		f.mu.Lock()
		data = map[string]any{"inputSettings": f.settings, "inputKind": "xcomposite_input"}
		f.mu.Unlock()
	case "SetInputSettings":
		if payload, ok := req.RequestData.(map[string]any); ok {
			f.mu.Lock()
			f.applied = append(f.applied, payload)
			f.mu.Unlock()
		}
	case "GetInputList":
		data = map[string]any{"inputs": []map[string]any{
			{"inputName": "Game Capture", "inputKind": "xcomposite_input", "unversionedInputKind": "xcomposite_input"},
			{"inputName": "Mic", "inputKind": "pulse_input_capture", "unversionedInputKind": "pulse_input_capture"},
		}}
	default:
		status = map[string]any{"result": false, "code": 204, "comment": "unknown request type"}
	}

	resp := map[string]any{
		"requestType":   req.RequestType,
		"requestId":     req.RequestID,
		"requestStatus": status,
	}
	if data != nil {
		resp["responseData"] = data
	}
	f.write(conn, opRequestResponse, resp)
}

func (f *fakeHostServer) write(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return conn.WriteJSON(envelope{Op: op, D: raw})
}

func (f *fakeHostServer) pushEvent(eventType string, data any) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		f.t.Error("no identified connection to push event on")
		return
	}
	raw, err := json.Marshal(map[string]any{"eventType": eventType, "eventIntent": 4, "eventData": data})
	if err != nil {
		f.t.Errorf("marshal event: %v", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conn.WriteJSON(envelope{Op: opEvent, D: raw})
}

func (f *fakeHostServer) appliedPayloads() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.applied))
	copy(out, f.applied)
	return out
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientConnectAndRequest(t *testing.T) {
	_, url := startFakeHost(t, "")
	ctx := testContext(t)

	c := NewClient(url, "")
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	if !c.Connected() {
		t.Error("Connected() = false after successful handshake")
	}

	v, err := c.Version(ctx)
	if err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	if v.Platform != "linux" {
		t.Errorf("platform = %q, want %q", v.Platform, "linux")
	}

	scene, err := c.CurrentProgramScene(ctx)
	if err != nil {
		t.Fatalf("CurrentProgramScene() error: %v", err)
	}
	if scene != "Gameplay" {
		t.Errorf("scene = %q, want %q", scene, "Gameplay")
	}
}

func TestClientAuthenticates(t *testing.T) {
	_, url := startFakeHost(t, "supersecret")
	ctx := testContext(t)

	c := NewClient(url, "supersecret")
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	if _, err := c.Version(ctx); err != nil {
		t.Errorf("Version() after authenticated handshake error: %v", err)
	}
}

func TestClientAuthRequiredWithoutPassword(t *testing.T) {
	_, url := startFakeHost(t, "supersecret")
	ctx := testContext(t)

	c := NewClient(url, "")
	if err := c.Connect(ctx); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("Connect() error = %v, want ErrAuthRequired", err)
	}
}

func TestClientWrongPasswordRejected(t *testing.T) {
	_, url := startFakeHost(t, "supersecret")
	ctx := testContext(t)

	c := NewClient(url, "wrong")
	if err := c.Connect(ctx); err == nil {
		c.Close()
		t.Fatal("Connect() succeeded with a wrong password")
	}
}

func TestClientSceneItemsAndInputs(t *testing.T) {
	_, url := startFakeHost(t, "")
	ctx := testContext(t)

	c := NewClient(url, "")
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	items, err := c.SceneItems(ctx, "Gameplay")
	if err != nil {
		t.Fatalf("SceneItems() error: %v", err)
	}
	if len(items) != 1 || items[0].SourceName != "Game Capture" {
		t.Errorf("items = %+v, want one Game Capture item", items)
	}

	inputs, err := c.Inputs(ctx)
	if err != nil {
		t.Fatalf("Inputs() error: %v", err)
	}
	if len(inputs) != 2 {
		t.Errorf("inputs = %d, want 2", len(inputs))
	}
}

func TestClientSetInputSettingsSendsOverlay(t *testing.T) {
	f, url := startFakeHost(t, "")
	ctx := testContext(t)

	c := NewClient(url, "")
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	err := c.SetInputSettings(ctx, "Game Capture", Settings{"window": "a:b"})
	if err != nil {
		t.Fatalf("SetInputSettings() error: %v", err)
	}

	applied := f.appliedPayloads()
	if len(applied) != 1 {
		t.Fatalf("applied payloads = %d, want 1", len(applied))
	}
	payload := applied[0]
	if payload["inputName"] != "Game Capture" {
		t.Errorf("inputName = %v, want Game Capture", payload["inputName"])
	}
	if payload["overlay"] != true {
		t.Errorf("overlay = %v, want true", payload["overlay"])
	}
	settings, ok := payload["inputSettings"].(map[string]any)
	if !ok || settings["window"] != "a:b" {
		t.Errorf("inputSettings = %v, want window key a:b", payload["inputSettings"])
	}
}

func TestClientRequestErrorSurfaced(t *testing.T) {
	_, url := startFakeHost(t, "")
	ctx := testContext(t)

	c := NewClient(url, "")
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	err := c.request(ctx, "NotARealRequest", nil, nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("request error = %v, want *RequestError", err)
	}
	if reqErr.Code != 204 {
		t.Errorf("code = %d, want 204", reqErr.Code)
	}
}

func TestClientEventStream(t *testing.T) {
	f, url := startFakeHost(t, "")
	ctx := testContext(t)

	c := NewClient(url, "")
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	f.pushEvent("CurrentProgramSceneChanged", map[string]string{"sceneName": "Break"})

	select {
	case ev := <-c.Events():
		if ev.Type != EventSceneChanged {
			t.Errorf("event type = %v, want EventSceneChanged", ev.Type)
		}
		if ev.SceneName != "Break" {
			t.Errorf("scene = %q, want %q", ev.SceneName, "Break")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scene change event")
	}
}

func TestClientCloseDisconnects(t *testing.T) {
	_, url := startFakeHost(t, "")
	ctx := testContext(t)

	c := NewClient(url, "")
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	c.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type != EventDisconnected {
				continue
			}
			if c.Connected() {
				t.Error("Connected() = true after disconnect event")
			}
			if _, err := c.CurrentProgramScene(ctx); !errors.Is(err, ErrNotConnected) {
				t.Errorf("request after close error = %v, want ErrNotConnected", err)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for disconnect event")
		}
	}
}
