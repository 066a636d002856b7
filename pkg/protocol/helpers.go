package protocol

import (
	"encoding/base64"
	"fmt"
	"time"
)

// NewFrameMessage wraps a JPEG frame.
func NewFrameMessage(width, height int, jpeg []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpeg),
		FrameID: frameID,
	})
}

// NewControlMessage builds a control request. enabled is only meaningful
// for ActionAudio; nil toggles.
func NewControlMessage(action string, enabled *bool) (*Message, error) {
	return NewMessage(TypeControl, ControlData{Action: action, Enabled: enabled})
}

func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewAnnounceMessage builds an announcement. Without audio the client
// speaks the text itself, so format and sampleRate are dropped.
func NewAnnounceMessage(text, locale string, forced bool, audio []byte, format string, sampleRate int) (*Message, error) {
	data := AnnounceData{Text: text, Locale: locale, Forced: forced}
	if len(audio) > 0 {
		data.Format = format
		data.SampleRate = sampleRate
		data.Data = base64.StdEncoding.EncodeToString(audio)
	}
	return NewMessage(TypeAnnounce, data)
}

func NewCameraMessage(camera CameraData) (*Message, error) {
	return NewMessage(TypeCamera, camera)
}

// NewCameraReply is the client's answer to a camera request.
func NewCameraReply(facing string, openErr error) (*Message, error) {
	data := CameraData{Open: openErr == nil, Facing: facing}
	if openErr != nil {
		data.Error = openErr.Error()
	}
	return NewMessage(TypeCamera, data)
}

// NewSilenceMessage asks the client to stop playing any announcement.
func NewSilenceMessage() (*Message, error) {
	return NewMessage(TypeSilence, nil)
}

func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message})
}

func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage answers a ping that was sent at pingTS.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// Payload lists the data types a Message can carry.
type Payload interface {
	FrameData | ControlData | StatusData | AnnounceData | CameraData | ErrorData | PingData | PongData
}

// Decode parses m's data as T. It fails when m's type does not carry a T,
// so a ping is never read as a frame.
func Decode[T Payload](m *Message) (*T, error) {
	var data T
	if want := payloadType(data); m.Type != want {
		return nil, fmt.Errorf("protocol: %s message does not carry %s data", m.Type, want)
	}
	if err := m.ParseData(&data); err != nil {
		return nil, fmt.Errorf("protocol: decode %s data: %w", m.Type, err)
	}
	return &data, nil
}

func payloadType(v any) MessageType {
	switch v.(type) {
	case FrameData:
		return TypeFrame
	case ControlData:
		return TypeControl
	case StatusData:
		return TypeStatus
	case AnnounceData:
		return TypeAnnounce
	case CameraData:
		return TypeCamera
	case ErrorData:
		return TypeError
	case PingData:
		return TypePing
	case PongData:
		return TypePong
	}
	return ""
}

// JPEG decodes the frame bytes.
func (f *FrameData) JPEG() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// Audio decodes the synthesized audio. It is empty for text-only
// announcements.
func (a *AnnounceData) Audio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}
