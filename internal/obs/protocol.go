package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// obs-websocket 5.x message opcodes.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opEvent           = 5
	opRequest         = 6
	opRequestResponse = 7
)

// Event subscription bits for the Identify message.
const (
	subGeneral = 1 << 0
	subConfig  = 1 << 1
	subScenes  = 1 << 2
	subOutputs = 1 << 6
)

// rpcVersion is the only protocol revision obs-websocket 5.x speaks.
const rpcVersion = 1

// envelope is the outer frame of every message: an opcode and a data object.
type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type identifiedData struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

type eventData struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	EventData   json.RawMessage `json:"eventData"`
}

// authToken derives the Identify authentication string from the password and
// the challenge/salt pair the server sent in Hello:
// base64(sha256(base64(sha256(password + salt)) + challenge)).
func authToken(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	proof := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(proof[:])
}

// SceneItem is one entry of a scene's item list.
type SceneItem struct {
	ID         int    `json:"sceneItemId"`
	SourceName string `json:"sourceName"`
	InputKind  string `json:"inputKind"`
}

// Input is one entry of the host's input list.
type Input struct {
	Name            string `json:"inputName"`
	Kind            string `json:"inputKind"`
	UnversionedKind string `json:"unversionedInputKind"`
}

// Version describes the host, from GetVersion.
type Version struct {
	OBSVersion          string `json:"obsVersion"`
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	Platform            string `json:"platform"`
}
