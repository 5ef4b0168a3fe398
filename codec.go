package jsonrpc

import json "github.com/goccy/go-json"

// contextKey is an unexported type so session-scoped context values never
// collide with keys set by other packages.
type contextKey int

const sessionContextKey contextKey = 1

// SessionKey is a context.Context key for a session value. No package in
// this module stores a value under it.
var SessionKey interface{} = sessionContextKey

// Classify inspects a single JSON-RPC wire message and reports its
// MessageType without fully decoding it: a message carrying "method" is a
// Request (if "id" is present) or a Notification (if not); a message
// without "method" is a Response (classified as MessageTypeError when its
// "error" field is set).
func Classify(data []byte) (MessageType, error) {
	var probe struct {
		Id     *json.RawMessage `json:"id"`
		Method *string          `json:"method"`
		Error  *json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", err
	}
	switch {
	case probe.Method != nil && probe.Id != nil:
		return MessageTypeRequest, nil
	case probe.Method != nil:
		return MessageTypeNotification, nil
	case probe.Error != nil:
		return MessageTypeError, nil
	default:
		return MessageTypeResponse, nil
	}
}

// Parse decodes an arbitrary JSON-RPC wire message into a Message, picking
// the concrete shape according to Classify.
func Parse(data []byte) (*Message, error) {
	kind, err := Classify(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case MessageTypeRequest:
		req := &Request{}
		if err := json.Unmarshal(data, req); err != nil {
			return nil, err
		}
		return NewRequestMessage(req), nil
	case MessageTypeNotification:
		n := &Notification{}
		if err := json.Unmarshal(data, n); err != nil {
			return nil, err
		}
		return NewNotificationMessage(n), nil
	default:
		resp := &Response{}
		if err := json.Unmarshal(data, resp); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return NewErrorMessage(resp), nil
		}
		return NewResponseMessage(resp), nil
	}
}

// IsInitialize reports whether a request message is the MCP handshake
// "initialize" method.
func IsInitialize(msg *Message) bool {
	return msg != nil && msg.Type == MessageTypeRequest && msg.JsonRpcRequest.Method == "initialize"
}

// IsInitializedNotification reports whether a message is the
// "notifications/initialized" handshake acknowledgement.
func IsInitializedNotification(msg *Message) bool {
	return msg != nil && msg.Type == MessageTypeNotification && msg.JsonRpcNotification.Method == "notifications/initialized"
}

// NeedsResponse reports whether the message expects a correlated response
// (true for requests, false for notifications and responses/errors).
func NeedsResponse(msg *Message) bool {
	return msg != nil && msg.Type == MessageTypeRequest
}
