package types

// Client -> Server
//
//	Chat:          {"Chat":{"text":"hi","to":null}}
//	CreateRoom:    {"CreateRoom":{"title":"lobby"}}
//	GetRoomDetail: {"GetRoomDetail":{"room":12}}
//	JoinRoom:      {"JoinRoom":{"room":12}}
//	QuitRoom:      "QuitRoom"
//
// Server -> Client
//
//	Connected:    {"Connected":{"user":{"id":1,"name":"GUEST_1000"}}}
//	Welcome:      {"Welcome":{"id":1,"users":[...],"rooms":[...]}}
//	Disconnected: {"Disconnected":{"id":1}}
//	Alert:        {"Alert":"TargetNotFound"} | {"Alert":{"Join":{"user":1}}} | {"Alert":{"Quit":{"user":1}}}
//	Chat:         {"Chat":{"from":1,"text":"hi","whisper":false}}
//	NewRoom:      {"NewRoom":{"room":{"id":12,"title":"lobby"}}}
//	DestroyRoom:  {"DestroyRoom":{"room":12}}
//	RoomDetail:   {"RoomDetail":{"room":{"id":12,"title":"lobby","owner":1,"members":[1]}}}
//	ReadyJoin:    same body as RoomDetail
//	RoomUpdate:   same body as RoomDetail

type ClientMessage interface {
	Kind() string
	isClientMessage()
}

type Chat struct {
	Text string  `json:"text"`
	To   *UserID `json:"to"`
}

type CreateRoom struct {
	Title string `json:"title"`
}

type GetRoomDetail struct {
	Room RoomID `json:"room"`
}

type JoinRoom struct {
	Room RoomID `json:"room"`
}

type QuitRoom struct{}

func (Chat) Kind() string          { return "Chat" }
func (CreateRoom) Kind() string    { return "CreateRoom" }
func (GetRoomDetail) Kind() string { return "GetRoomDetail" }
func (JoinRoom) Kind() string      { return "JoinRoom" }
func (QuitRoom) Kind() string      { return "QuitRoom" }

func (Chat) isClientMessage()          {}
func (CreateRoom) isClientMessage()    {}
func (GetRoomDetail) isClientMessage() {}
func (JoinRoom) isClientMessage()      {}
func (QuitRoom) isClientMessage()      {}

type ServerMessage interface {
	Kind() string
	isServerMessage()
}

type Connected struct {
	User UserBrief `json:"user"`
}

type Welcome struct {
	ID    UserID      `json:"id"`
	Users []UserBrief `json:"users"`
	Rooms []RoomBrief `json:"rooms"`
}

type Disconnected struct {
	ID UserID `json:"id"`
}

// ChatMessage is the server side of a chat line. On the wire it is tagged "Chat".
type ChatMessage struct {
	From    UserID `json:"from"`
	Text    string `json:"text"`
	Whisper bool   `json:"whisper"`
}

type NewRoom struct {
	Room RoomBrief `json:"room"`
}

type DestroyRoom struct {
	Room RoomID `json:"room"`
}

type RoomDetail struct {
	Room Room `json:"room"`
}

type ReadyJoin struct {
	Room Room `json:"room"`
}

type RoomUpdate struct {
	Room Room `json:"room"`
}

func (Connected) Kind() string    { return "Connected" }
func (Welcome) Kind() string      { return "Welcome" }
func (Disconnected) Kind() string { return "Disconnected" }
func (Alert) Kind() string        { return "Alert" }
func (ChatMessage) Kind() string  { return "Chat" }
func (NewRoom) Kind() string      { return "NewRoom" }
func (DestroyRoom) Kind() string  { return "DestroyRoom" }
func (RoomDetail) Kind() string   { return "RoomDetail" }
func (ReadyJoin) Kind() string    { return "ReadyJoin" }
func (RoomUpdate) Kind() string   { return "RoomUpdate" }

func (Connected) isServerMessage()    {}
func (Welcome) isServerMessage()      {}
func (Disconnected) isServerMessage() {}
func (Alert) isServerMessage()        {}
func (ChatMessage) isServerMessage()  {}
func (NewRoom) isServerMessage()      {}
func (DestroyRoom) isServerMessage()  {}
func (RoomDetail) isServerMessage()   {}
func (ReadyJoin) isServerMessage()    {}
func (RoomUpdate) isServerMessage()   {}
