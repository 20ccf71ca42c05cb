package protocol

import "encoding/json"

const Version = "1.0"

// Message types on the snapshot stream.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeSnapshot  = "SNAPSHOT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// SubscribeMsg is the required first message on the stream socket.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ObserverName    string `json:"observer_name,omitempty"`
}

// SnapshotMsg frames one published state document on the stream.
type SnapshotMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Data            json.RawMessage `json:"data"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
