package detection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType is the "type" discriminator of every frame on the channel
type MessageType string

const (
	TypeFaceDetectionResult MessageType = "face_detection_result"
	TypeCountdownStarted    MessageType = "countdown_started"
	TypeCountdownTick       MessageType = "countdown_tick"
	TypeCountdownStopped    MessageType = "countdown_stopped"
	TypeCaptureCommand      MessageType = "capture_command"
	TypePing                MessageType = "ping"
	TypePong                MessageType = "pong"
	TypeConnected           MessageType = "connected"
	TypeError               MessageType = "error"

	// Outbound
	TypeFaceDetection MessageType = "face_detection"
)

// ErrorCodeKeepalive marks server errors caused by the keep-alive exchange
const ErrorCodeKeepalive = "keepalive"

// Message is an inbound frame. The set of implementations is closed; Unknown
// carries any type this client does not understand.
type Message interface {
	Type() MessageType
	isMessage()
}

type FaceDetectionResult struct {
	FaceDetected    bool    `json:"face_detected"`
	Confidence      float64 `json:"confidence"`
	FaceCount       int     `json:"face_count"`
	ReadyForCapture bool    `json:"ready_for_capture"`
	Message         string  `json:"message,omitempty"`
}

type CountdownStarted struct {
	Duration int `json:"duration"`
}

type CountdownTick struct {
	Remaining int `json:"remaining"`
}

type CountdownStopped struct {
	Reason string `json:"reason,omitempty"`
}

type CaptureCommand struct{}

type Ping struct{}

type Pong struct{}

type Connected struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type ServerError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Benign reports whether the error is a keep-alive artifact that must not be
// shown to the user. Servers that do not send a structured code are matched
// on the message text.
func (e ServerError) Benign() bool {
	if e.Code == ErrorCodeKeepalive {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "pong")
}

type Unknown struct {
	Kind MessageType
	Raw  json.RawMessage
}

func (FaceDetectionResult) Type() MessageType { return TypeFaceDetectionResult }
func (CountdownStarted) Type() MessageType    { return TypeCountdownStarted }
func (CountdownTick) Type() MessageType       { return TypeCountdownTick }
func (CountdownStopped) Type() MessageType    { return TypeCountdownStopped }
func (CaptureCommand) Type() MessageType      { return TypeCaptureCommand }
func (Ping) Type() MessageType                { return TypePing }
func (Pong) Type() MessageType                { return TypePong }
func (Connected) Type() MessageType           { return TypeConnected }
func (ServerError) Type() MessageType         { return TypeError }
func (u Unknown) Type() MessageType           { return u.Kind }

func (FaceDetectionResult) isMessage() {}
func (CountdownStarted) isMessage()    {}
func (CountdownTick) isMessage()       {}
func (CountdownStopped) isMessage()    {}
func (CaptureCommand) isMessage()      {}
func (Ping) isMessage()                {}
func (Pong) isMessage()                {}
func (Connected) isMessage()           {}
func (ServerError) isMessage()         {}
func (Unknown) isMessage()             {}

type envelope struct {
	Type MessageType `json:"type"`
}

// Decode parses one inbound frame. Unrecognised types decode to Unknown; only
// malformed JSON or a missing discriminator is an error.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	var (
		msg Message
		err error
	)

	switch env.Type {
	case TypeFaceDetectionResult:
		var m FaceDetectionResult
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeCountdownStarted:
		var m CountdownStarted
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeCountdownTick:
		var m CountdownTick
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeCountdownStopped:
		var m CountdownStopped
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeCaptureCommand:
		msg = CaptureCommand{}
	case TypePing:
		msg = Ping{}
	case TypePong:
		msg = Pong{}
	case TypeConnected:
		var m Connected
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeError:
		var m ServerError
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		msg = Unknown{Kind: env.Type, Raw: append(json.RawMessage(nil), data...)}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, env.Type, err)
	}
	return msg, nil
}

// FrameMessage is the outbound frame carrying one sampled video frame
type FrameMessage struct {
	Type  MessageType `json:"type"`
	Image string      `json:"image"`
}

// NewFrameMessage wraps an encoded image (a data URL) for sending
func NewFrameMessage(image string) FrameMessage {
	return FrameMessage{Type: TypeFaceDetection, Image: image}
}

// ControlMessage is an outbound frame with no payload, such as pong
type ControlMessage struct {
	Type MessageType `json:"type"`
}
