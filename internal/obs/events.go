package obs

import "encoding/json"

// EventType classifies host events the client surfaces. Everything else the
// host emits is logged at debug level and dropped.
type EventType int

const (
	// EventConnected fires after every successful identify, including
	// reconnects. Consumers should resynchronize their state on it.
	EventConnected EventType = iota
	// EventDisconnected fires when the connection is lost.
	EventDisconnected
	// EventSceneChanged fires when the current program scene changes.
	EventSceneChanged
	// EventExiting fires when the host announces shutdown.
	EventExiting
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSceneChanged:
		return "scene_changed"
	case EventExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// Event is a host event reduced to what trackers need.
type Event struct {
	Type      EventType
	SceneName string
}

// parseEvent maps a raw event frame onto a typed Event. The second return is
// false for event kinds nothing here consumes.
func parseEvent(ev eventData) (Event, bool) {
	switch ev.EventType {
	case "CurrentProgramSceneChanged":
		var data struct {
			SceneName string `json:"sceneName"`
		}
		if err := json.Unmarshal(ev.EventData, &data); err != nil {
			return Event{}, false
		}
		return Event{Type: EventSceneChanged, SceneName: data.SceneName}, true
	case "ExitStarted":
		return Event{Type: EventExiting}, true
	default:
		return Event{}, false
	}
}
