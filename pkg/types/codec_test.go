package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClient_Variants(t *testing.T) {
	to := UserID(42)
	cases := []struct {
		name string
		raw  string
		want ClientMessage
	}{
		{name: "broadcast chat", raw: `{"Chat":{"text":"hello","to":null}}`, want: Chat{Text: "hello"}},
		{name: "whisper", raw: `{"Chat":{"text":"psst","to":42}}`, want: Chat{Text: "psst", To: &to}},
		{name: "create room", raw: `{"CreateRoom":{"title":"lobby"}}`, want: CreateRoom{Title: "lobby"}},
		{name: "create room, nested body", raw: `{"CreateRoom":{"room":{"id":0,"title":"lobby"}}}`, want: CreateRoom{Title: "lobby"}},
		{name: "room detail", raw: `{"GetRoomDetail":{"room":7}}`, want: GetRoomDetail{Room: 7}},
		{name: "join", raw: `{"JoinRoom":{"room":7}}`, want: JoinRoom{Room: 7}},
		{name: "quit as unit variant", raw: `"QuitRoom"`, want: QuitRoom{}},
		{name: "quit with empty body", raw: ` {"QuitRoom":{}} `, want: QuitRoom{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeClient([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeClient_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{name: "empty", raw: "", want: ErrMalformed},
		{name: "not json", raw: "hello", want: ErrMalformed},
		{name: "two tags", raw: `{"Chat":{"text":"a"},"QuitRoom":{}}`, want: ErrMalformed},
		{name: "unknown tag", raw: `{"Dance":{}}`, want: ErrUnknownMessage},
		{name: "unknown unit variant", raw: `"Dance"`, want: ErrUnknownMessage},
		{name: "server message sent by client", raw: `{"Welcome":{"id":1}}`, want: ErrUnknownMessage},
		{name: "bare tag needing a body", raw: `"JoinRoom"`, want: ErrMalformed},
		{name: "wrong field type", raw: `{"JoinRoom":{"room":"seven"}}`, want: ErrMalformed},
		{name: "nested create body not an object", raw: `{"CreateRoom":{"room":"den"}}`, want: ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClient([]byte(tc.raw))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEncodeServer_WireShape(t *testing.T) {
	cases := []struct {
		name string
		msg  ServerMessage
		want string
	}{
		{
			name: "chat keeps the Chat tag",
			msg:  ChatMessage{From: 3, Text: "hi", Whisper: true},
			want: `{"Chat":{"from":3,"text":"hi","whisper":true}}`,
		},
		{
			name: "target not found is a unit alert",
			msg:  Alert{Type: AlertTargetNotFound},
			want: `{"Alert":"TargetNotFound"}`,
		},
		{
			name: "join alert carries the user",
			msg:  Alert{Type: AlertJoin, User: 9},
			want: `{"Alert":{"Join":{"user":9}}}`,
		},
		{
			name: "room update carries the full room",
			msg:  RoomUpdate{Room: Room{ID: 5, Title: "t", Owner: 1, Members: []UserID{1, 2}}},
			want: `{"RoomUpdate":{"room":{"id":5,"title":"t","owner":1,"members":[1,2]}}}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := EncodeServer(tc.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
		})
	}
}

func TestEncodeServer_UnknownAlertKind(t *testing.T) {
	_, err := EncodeServer(Alert{Type: "Shrug"})
	require.Error(t, err)
}

func TestServerCodec_AlertsSurviveDecode(t *testing.T) {
	for _, a := range []Alert{
		{Type: AlertTargetNotFound},
		{Type: AlertJoin, User: 12},
		{Type: AlertQuit, User: 13},
	} {
		b, err := EncodeServer(a)
		require.NoError(t, err)

		got, err := DecodeServer(b)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestEncodeClient_QuitRoomIsBareString(t *testing.T) {
	b, err := EncodeClient(QuitRoom{})
	require.NoError(t, err)
	assert.Equal(t, `"QuitRoom"`, string(b))

	_, err = EncodeClient(nil)
	require.ErrorIs(t, err, ErrUnknownMessage)
}
