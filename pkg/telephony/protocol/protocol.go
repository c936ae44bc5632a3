// Package protocol defines the JSON media-stream wire protocol spoken over the
// telephony WebSocket. The provider sends start/media/mark/stop events; the
// gateway replies with media/mark/clear events tagged with the stream SID.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventStart = "start"
	EventMedia = "media"
	EventMark  = "mark"
	EventStop  = "stop"
	EventClear = "clear"
)

// MarkEndOfSpeech is the mark name echoed back by the provider once all
// buffered assistant audio has been played to the caller.
const MarkEndOfSpeech = "end_of_speech"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// StartPayload carries call metadata on the first event of a stream.
type StartPayload struct {
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      *MediaFormat      `json:"mediaFormat,omitempty"`
}

// MediaFormat describes the negotiated audio shape. Telephony media streams
// are mu-law at 8 kHz mono unless stated otherwise.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one frame of base64-encoded companded audio.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

type StopPayload struct {
	CallSID string `json:"callSid,omitempty"`
}

// InboundMessage is the envelope for every provider-to-gateway event.
type InboundMessage struct {
	Event     string        `json:"event"`
	SequenceN string        `json:"sequenceNumber,omitempty"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
	Stop      *StopPayload  `json:"stop,omitempty"`
}

// Decode parses and validates one inbound frame. The event-specific payload is
// required for its event type; anything else is rejected rather than guessed at.
func Decode(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, badRequest("invalid json frame", "")
	}
	event := strings.TrimSpace(msg.Event)
	if event == "" {
		return InboundMessage{}, badRequest("missing event", "event")
	}
	msg.Event = event

	switch event {
	case EventStart:
		if msg.Start == nil {
			return InboundMessage{}, badRequest("start payload is required", "start")
		}
		if strings.TrimSpace(msg.StreamSID) == "" {
			return InboundMessage{}, badRequest("streamSid is required", "streamSid")
		}
		if strings.TrimSpace(msg.Start.CallSID) == "" {
			return InboundMessage{}, badRequest("start.callSid is required", "start.callSid")
		}
		return msg, nil
	case EventMedia:
		if msg.Media == nil {
			return InboundMessage{}, badRequest("media payload is required", "media")
		}
		if msg.Media.Payload == "" {
			return InboundMessage{}, badRequest("media.payload is required", "media.payload")
		}
		return msg, nil
	case EventMark:
		if msg.Mark == nil || strings.TrimSpace(msg.Mark.Name) == "" {
			return InboundMessage{}, badRequest("mark.name is required", "mark.name")
		}
		return msg, nil
	case EventStop:
		return msg, nil
	default:
		return InboundMessage{}, badRequest("unsupported event", "event")
	}
}

// OutboundMedia is an assistant audio frame sent back to the provider.
type OutboundMedia struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

// OutboundMark asks the provider to echo a named mark once playback of all
// previously sent media has finished.
type OutboundMark struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid"`
	Mark      MarkPayload `json:"mark"`
}

// OutboundClear tells the provider to discard any buffered outbound audio.
// Used for barge-in.
type OutboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

func NewMedia(streamSID, payloadB64 string) OutboundMedia {
	return OutboundMedia{Event: EventMedia, StreamSID: streamSID, Media: MediaPayload{Payload: payloadB64}}
}

func NewMark(streamSID, name string) OutboundMark {
	return OutboundMark{Event: EventMark, StreamSID: streamSID, Mark: MarkPayload{Name: name}}
}

func NewClear(streamSID string) OutboundClear {
	return OutboundClear{Event: EventClear, StreamSID: streamSID}
}
