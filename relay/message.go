// Package relay implements the NIP-01 relay wire dialect and the
// per-relay WebSocket connection: a state machine with exponential-backoff
// reconnect, publish-acknowledgement tracking, and subscription
// bookkeeping.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nostrforge/corenostr/nostr"
)

// ErrInvalidMessageFormat is returned when a frame with a recognized
// leading type string does not otherwise match the shape NIP-01 defines
// for that type.
var ErrInvalidMessageFormat = errors.New("relay: invalid message format")

// ClientMessage is a frame a client sends to a relay: EVENT, REQ, CLOSE,
// or AUTH.
type ClientMessage interface {
	MarshalClientMessage() ([]byte, error)
}

// EventMessage publishes ev to the relay.
type EventMessage struct {
	Event *nostr.Event
}

// ReqMessage opens or updates a subscription with one or more filters,
// OR'd together.
type ReqMessage struct {
	SubID   string
	Filters []nostr.Filter
}

// CloseMessage ends a subscription.
type CloseMessage struct {
	SubID string
}

// AuthMessage responds to a NIP-42 AUTH challenge with a signed event.
type AuthMessage struct {
	Event *nostr.Event
}

func (m EventMessage) MarshalClientMessage() ([]byte, error) {
	return json.Marshal([2]interface{}{"EVENT", m.Event})
}

func (m ReqMessage) MarshalClientMessage() ([]byte, error) {
	arr := make([]interface{}, 2+len(m.Filters))
	arr[0] = "REQ"
	arr[1] = m.SubID
	for i, f := range m.Filters {
		arr[2+i] = f
	}
	return json.Marshal(arr)
}

func (m CloseMessage) MarshalClientMessage() ([]byte, error) {
	return json.Marshal([2]interface{}{"CLOSE", m.SubID})
}

func (m AuthMessage) MarshalClientMessage() ([]byte, error) {
	return json.Marshal([2]interface{}{"AUTH", m.Event})
}

// ParseClientMessage parses a serialized client frame back into a
// ClientMessage. Primarily used to verify the wire codec round-trips.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 2 {
		return nil, ErrInvalidMessageFormat
	}
	var msgType string
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, ErrInvalidMessageFormat
	}

	switch msgType {
	case "EVENT":
		if len(raw) != 2 {
			return nil, ErrInvalidMessageFormat
		}
		var ev nostr.Event
		if err := json.Unmarshal(raw[1], &ev); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return EventMessage{Event: &ev}, nil
	case "REQ":
		if len(raw) < 2 {
			return nil, ErrInvalidMessageFormat
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		filters := make([]nostr.Filter, 0, len(raw)-2)
		for _, r := range raw[2:] {
			var f nostr.Filter
			if err := json.Unmarshal(r, &f); err != nil {
				return nil, ErrInvalidMessageFormat
			}
			filters = append(filters, f)
		}
		return ReqMessage{SubID: subID, Filters: filters}, nil
	case "CLOSE":
		if len(raw) != 2 {
			return nil, ErrInvalidMessageFormat
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return CloseMessage{SubID: subID}, nil
	case "AUTH":
		if len(raw) != 2 {
			return nil, ErrInvalidMessageFormat
		}
		var ev nostr.Event
		if err := json.Unmarshal(raw[1], &ev); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return AuthMessage{Event: &ev}, nil
	default:
		return nil, fmt.Errorf("relay: unrecognized client message type %q", msgType)
	}
}

// ServerMessage is a frame a relay sends to a client.
type ServerMessage interface{}

// EventFrame delivers an event matching subscription SubID.
type EventFrame struct {
	SubID string
	Event *nostr.Event
}

// EoseFrame signals that the relay has sent all stored events matching
// SubID; only live updates follow.
type EoseFrame struct {
	SubID string
}

// NoticeFrame carries a human-readable message from the relay.
type NoticeFrame struct {
	Message string
}

// OkFrame acknowledges a published event.
type OkFrame struct {
	EventID  string
	Accepted bool
	Message  string
}

// AuthFrame carries a NIP-42 AUTH challenge string.
type AuthFrame struct {
	Challenge string
}

// ClosedFrame signals that the relay closed SubID on its own.
type ClosedFrame struct {
	SubID   string
	Message string
}

// UnknownFrame is any frame whose leading type string is not one of the
// recognized server message types.
type UnknownFrame struct {
	Type string
	Raw  json.RawMessage
}

// ParseServerMessage parses a single inbound frame.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 1 {
		return nil, ErrInvalidMessageFormat
	}
	var msgType string
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, ErrInvalidMessageFormat
	}

	switch msgType {
	case "EVENT":
		if len(raw) != 3 {
			return nil, ErrInvalidMessageFormat
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		var ev nostr.Event
		if err := json.Unmarshal(raw[2], &ev); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return EventFrame{SubID: subID, Event: &ev}, nil
	case "EOSE":
		if len(raw) != 2 {
			return nil, ErrInvalidMessageFormat
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return EoseFrame{SubID: subID}, nil
	case "NOTICE":
		if len(raw) != 2 {
			return nil, ErrInvalidMessageFormat
		}
		var msg string
		if err := json.Unmarshal(raw[1], &msg); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return NoticeFrame{Message: msg}, nil
	case "OK":
		if len(raw) != 4 {
			return nil, ErrInvalidMessageFormat
		}
		var eventID string
		var accepted bool
		var msg string
		if err := json.Unmarshal(raw[1], &eventID); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		if err := json.Unmarshal(raw[2], &accepted); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		if err := json.Unmarshal(raw[3], &msg); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return OkFrame{EventID: eventID, Accepted: accepted, Message: msg}, nil
	case "AUTH":
		if len(raw) != 2 {
			return nil, ErrInvalidMessageFormat
		}
		var challenge string
		if err := json.Unmarshal(raw[1], &challenge); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return AuthFrame{Challenge: challenge}, nil
	case "CLOSED":
		if len(raw) != 3 {
			return nil, ErrInvalidMessageFormat
		}
		var subID, msg string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		if err := json.Unmarshal(raw[2], &msg); err != nil {
			return nil, ErrInvalidMessageFormat
		}
		return ClosedFrame{SubID: subID, Message: msg}, nil
	default:
		return UnknownFrame{Type: msgType, Raw: data}, nil
	}
}
