package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownMessage = errors.New("unknown message")
)

// Messages are externally tagged: a single-key object whose key names the
// variant, or a bare string for variants without a body.

func EncodeClient(m ClientMessage) ([]byte, error) {
	switch m.(type) {
	case QuitRoom:
		return json.Marshal(m.Kind())
	case Chat, CreateRoom, GetRoomDetail, JoinRoom:
		return json.Marshal(map[string]ClientMessage{m.Kind(): m})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

func DecodeClient(data []byte) (ClientMessage, error) {
	tag, body, err := splitTag(data)
	if err != nil {
		return nil, err
	}

	var msg ClientMessage
	switch tag {
	case "Chat":
		msg, err = decodeInto[Chat](body)
	case "CreateRoom":
		msg, err = decodeInto[CreateRoom](body)
	case "GetRoomDetail":
		msg, err = decodeInto[GetRoomDetail](body)
	case "JoinRoom":
		msg, err = decodeInto[JoinRoom](body)
	case "QuitRoom":
		return QuitRoom{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", tag, err)
	}
	return msg, nil
}

func EncodeServer(m ServerMessage) ([]byte, error) {
	switch m.(type) {
	case Connected, Welcome, Disconnected, Alert, ChatMessage,
		NewRoom, DestroyRoom, RoomDetail, ReadyJoin, RoomUpdate:
		return json.Marshal(map[string]ServerMessage{m.Kind(): m})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

func DecodeServer(data []byte) (ServerMessage, error) {
	tag, body, err := splitTag(data)
	if err != nil {
		return nil, err
	}

	var msg ServerMessage
	switch tag {
	case "Connected":
		msg, err = decodeInto[Connected](body)
	case "Welcome":
		msg, err = decodeInto[Welcome](body)
	case "Disconnected":
		msg, err = decodeInto[Disconnected](body)
	case "Alert":
		msg, err = decodeInto[Alert](body)
	case "Chat":
		msg, err = decodeInto[ChatMessage](body)
	case "NewRoom":
		msg, err = decodeInto[NewRoom](body)
	case "DestroyRoom":
		msg, err = decodeInto[DestroyRoom](body)
	case "RoomDetail":
		msg, err = decodeInto[RoomDetail](body)
	case "ReadyJoin":
		msg, err = decodeInto[ReadyJoin](body)
	case "RoomUpdate":
		msg, err = decodeInto[RoomUpdate](body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", tag, err)
	}
	return msg, nil
}

type alertUser struct {
	User UserID `json:"user"`
}

func (a Alert) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case AlertTargetNotFound:
		return json.Marshal(string(a.Type))
	case AlertJoin, AlertQuit:
		return json.Marshal(map[AlertKind]alertUser{a.Type: {User: a.User}})
	default:
		return nil, fmt.Errorf("%w: alert %q", ErrUnknownMessage, a.Type)
	}
}

func (a *Alert) UnmarshalJSON(data []byte) error {
	tag, body, err := splitTag(data)
	if err != nil {
		return err
	}
	switch kind := AlertKind(tag); kind {
	case AlertTargetNotFound:
		*a = Alert{Type: kind}
	case AlertJoin, AlertQuit:
		u, err := decodeInto[alertUser](body)
		if err != nil {
			return err
		}
		*a = Alert{Type: kind, User: u.User}
	default:
		return fmt.Errorf("%w: alert %q", ErrUnknownMessage, tag)
	}
	return nil
}

// UnmarshalJSON also accepts the older browser client's body,
// {"room":{"id":0,"title":"..."}}. The id there is a placeholder and is
// ignored; the server assigns room ids.
func (c *CreateRoom) UnmarshalJSON(data []byte) error {
	var body struct {
		Title *string `json:"title"`
		Room  *struct {
			Title string `json:"title"`
		} `json:"room"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	switch {
	case body.Title != nil:
		*c = CreateRoom{Title: *body.Title}
	case body.Room != nil:
		*c = CreateRoom{Title: body.Room.Title}
	default:
		*c = CreateRoom{}
	}
	return nil
}

func splitTag(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	if data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return tag, nil, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(env) != 1 {
		return "", nil, fmt.Errorf("%w: want exactly one tag, got %d", ErrMalformed, len(env))
	}
	for tag, body := range env {
		return tag, body, nil
	}
	return "", nil, ErrMalformed // unreachable
}

func decodeInto[T any](body json.RawMessage) (T, error) {
	var v T
	if len(body) == 0 {
		return v, fmt.Errorf("%w: missing body", ErrMalformed)
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
