package jsonrpc

import (
	"errors"

	json "github.com/goccy/go-json"
)

// BatchRequest represents a JSON-RPC 2.0 batch request: a non-empty ordered
// list of requests and/or notifications, as per spec.
type BatchRequest []*Message

// BatchResponse represents a JSON-RPC 2.0 batch response: the responses for
// every request in a BatchRequest that carried an id, in the same order,
// omitting entries for notifications.
type BatchResponse []*Response

// UnmarshalJSON is a custom JSON unmarshaler for the BatchRequest type. Each
// element is classified independently, so a batch may freely mix requests
// and notifications.
func (b *BatchRequest) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.New("invalid batch request: empty array")
	}

	messages := make([]*Message, 0, len(raw))
	for _, entry := range raw {
		msg, err := ParseRequestMessage(entry)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	*b = messages
	return nil
}

// ParseRequestMessage classifies and decodes a single JSON-RPC message that
// is either a request or a notification (i.e. a client-to-server message, as
// opposed to a server-to-client Response).
func ParseRequestMessage(data []byte) (*Message, error) {
	var probe struct {
		Id     *json.RawMessage `json:"id"`
		Method *string          `json:"method"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.Method == nil {
		return nil, errors.New("invalid jsonrpc message: missing method")
	}
	if probe.Id == nil {
		notification := &Notification{}
		if err := json.Unmarshal(data, notification); err != nil {
			return nil, err
		}
		return NewNotificationMessage(notification), nil
	}
	request := &Request{}
	if err := json.Unmarshal(data, request); err != nil {
		return nil, err
	}
	return NewRequestMessage(request), nil
}

// MarshalJSON renders the batch response in wire order, omitting responses
// for the (absent, by construction) notification entries.
func (b BatchResponse) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]*Response(b))
}
