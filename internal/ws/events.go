package ws

import (
	"encoding/json"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
)

type resultEvent struct {
	Type detection.MessageType `json:"type"`
	detection.FaceDetectionResult
}

type countdownStartedEvent struct {
	Type detection.MessageType `json:"type"`
	detection.CountdownStarted
}

type countdownTickEvent struct {
	Type detection.MessageType `json:"type"`
	detection.CountdownTick
}

type countdownStoppedEvent struct {
	Type detection.MessageType `json:"type"`
	detection.CountdownStopped
}

type connectedEvent struct {
	Type detection.MessageType `json:"type"`
	detection.Connected
}

type errorEvent struct {
	Type detection.MessageType `json:"type"`
	detection.ServerError
}

// inbound is every frame a capture client may send
type inbound struct {
	Type  detection.MessageType `json:"type"`
	Image string                `json:"image,omitempty"`
}

// encode returns nil when v cannot be marshaled, e.g. a NaN confidence
func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func newResult(r detection.FaceDetectionResult) []byte {
	return encode(resultEvent{Type: detection.TypeFaceDetectionResult, FaceDetectionResult: r})
}

func newCountdownStarted(duration int) []byte {
	return encode(countdownStartedEvent{
		Type:             detection.TypeCountdownStarted,
		CountdownStarted: detection.CountdownStarted{Duration: duration},
	})
}

func newCountdownTick(remaining int) []byte {
	return encode(countdownTickEvent{
		Type:          detection.TypeCountdownTick,
		CountdownTick: detection.CountdownTick{Remaining: remaining},
	})
}

func newCountdownStopped(reason string) []byte {
	return encode(countdownStoppedEvent{
		Type:             detection.TypeCountdownStopped,
		CountdownStopped: detection.CountdownStopped{Reason: reason},
	})
}

func newCaptureCommand() []byte {
	return encode(detection.ControlMessage{Type: detection.TypeCaptureCommand})
}

func newPing() []byte {
	return encode(detection.ControlMessage{Type: detection.TypePing})
}

func newPong() []byte {
	return encode(detection.ControlMessage{Type: detection.TypePong})
}

func newConnected(sessionID string) []byte {
	return encode(connectedEvent{
		Type:      detection.TypeConnected,
		Connected: detection.Connected{SessionID: sessionID, Message: "detection session ready"},
	})
}

func newError(code, message string) []byte {
	return encode(errorEvent{
		Type:        detection.TypeError,
		ServerError: detection.ServerError{Code: code, Message: message},
	})
}
