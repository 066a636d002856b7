// Package protocol defines the WebSocket messages exchanged between a
// camera client (browser or phone) and the detection server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeFrame   MessageType = "frame"   // Camera frame
	TypeControl MessageType = "control" // Start, stop, flip, audio

	// Server → Client messages
	TypeStatus   MessageType = "status"   // Detection status line
	TypeAnnounce MessageType = "announce" // Something to say out loud
	TypeSilence  MessageType = "silence"  // Stop whatever is being said
	TypeError    MessageType = "error"    // Request could not be handled

	// Bidirectional
	TypeCamera MessageType = "camera" // Server: open or close; client: what happened
	TypePing   MessageType = "ping"   // Health check
	TypePong   MessageType = "pong"   // Health check response
)

// Control actions
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionFlip  = "flip"
	ActionAudio = "audio"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// FrameData contains a camera frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// ControlData asks the server to change the session
type ControlData struct {
	Action  string `json:"action"`            // start, stop, flip, audio
	Enabled *bool  `json:"enabled,omitempty"` // audio only; nil toggles
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// StatusData mirrors the session status line
type StatusData struct {
	SessionID  string  `json:"session_id"`
	Running    bool    `json:"running"`
	Facing     string  `json:"facing"`
	Audio      bool    `json:"audio"`
	Phase      string  `json:"phase"` // idle, tracking, confirmed
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Message    string  `json:"message"`
	Error      string  `json:"error,omitempty"`
	Brightness float64 `json:"brightness,omitempty"` // center luma when the scene gate ran
}

// AnnounceData is an utterance for the client to play. Without audio the
// client speaks Text with its own synthesizer.
type AnnounceData struct {
	Text       string `json:"text"`
	Locale     string `json:"locale"`
	Forced     bool   `json:"forced,omitempty"`
	Format     string `json:"format,omitempty"`      // "mp3", "pcm16"
	SampleRate int    `json:"sample_rate,omitempty"` // e.g. 24000
	Data       string `json:"data,omitempty"`        // base64 encoded audio
}

// CameraData tells the client which camera to open and how. The client
// answers with Open set when the camera is streaming, or with Error when it
// could not be opened.
type CameraData struct {
	Open       bool   `json:"open"`
	Error      string `json:"error,omitempty"`
	Facing     string `json:"facing,omitempty"`      // back, front
	FacingMode string `json:"facing_mode,omitempty"` // environment, user
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Framerate  int    `json:"framerate,omitempty"`
	Quality    int    `json:"quality,omitempty"`
}

// ErrorData reports a rejected request
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
