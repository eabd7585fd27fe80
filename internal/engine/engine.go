// Package engine holds the authority state of the chat server: connected
// sessions and the rooms they belong to. It is not safe for concurrent use;
// the hub owns a single State and applies every operation from one goroutine.
package engine

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/DoyleJ11/kiwitu-chat/pkg/types"
)

var ErrUnknownSession = errors.New("unknown session")
var ErrAlreadyInRoom = errors.New("already in a room")
var ErrNotInRoom = errors.New("not in a room")
var ErrRoomNotFound = errors.New("room not found")
var ErrEmptyText = errors.New("empty text")
var ErrEmptyTitle = errors.New("empty title")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Session struct {
	ID   types.UserID
	Name string
	Room *types.RoomID
}

func (s *Session) Brief() types.UserBrief {
	return types.UserBrief{ID: s.ID, Name: s.Name}
}

// Delivery is one message addressed to one session. The hub resolves the
// address to an outbox; the engine never touches transport.
type Delivery struct {
	To  types.UserID
	Msg types.ServerMessage
}

type State struct {
	Sessions map[types.UserID]*Session
	Rooms    map[types.RoomID]*Room

	ids *allocator
}

func NewState(opts ...Option) *State {
	s := &State{
		Sessions: make(map[types.UserID]*Session),
		Rooms:    make(map[types.RoomID]*Room),
		ids:      newAllocator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect registers a new guest. The new session gets a Welcome listing
// everybody else, then every session (the new one included) gets Connected.
func (s *State) Connect() (*Session, []Delivery, error) {
	id, err := s.ids.user(func(id types.UserID) bool {
		_, taken := s.Sessions[id]
		return taken
	})
	if err != nil {
		return nil, nil, err
	}

	sess := &Session{ID: id, Name: GuestName(id)}
	welcome := types.Welcome{ID: id, Users: s.userBriefs(), Rooms: s.roomBriefs()}
	s.Sessions[id] = sess

	out := []Delivery{{To: id, Msg: welcome}}
	out = append(out, s.toEveryone(types.Connected{User: sess.Brief()})...)
	return sess, out, nil
}

func (s *State) Disconnect(id types.UserID) ([]Delivery, error) {
	sess, ok := s.Sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}

	var out []Delivery
	if sess.Room != nil {
		// The only failure left here is a dangling room, which QuitRoom clears.
		quit, _ := s.QuitRoom(id)
		out = append(out, quit...)
	}

	delete(s.Sessions, id)
	out = append(out, s.toEveryone(types.Disconnected{ID: id})...)
	return out, nil
}

// Apply routes a client message from a connected session to its operation.
func (s *State) Apply(from types.UserID, msg types.ClientMessage) ([]Delivery, error) {
	switch m := msg.(type) {
	case types.Chat:
		return s.Chat(from, m.Text, m.To)
	case types.CreateRoom:
		return s.CreateRoom(from, m.Title)
	case types.GetRoomDetail:
		return s.GetRoomDetail(from, m.Room)
	case types.JoinRoom:
		return s.JoinRoom(from, m.Room)
	case types.QuitRoom:
		return s.QuitRoom(from)
	default:
		return nil, ErrUnsupportedCommand
	}
}

func (s *State) Chat(from types.UserID, text string, to *types.UserID) ([]Delivery, error) {
	sender, ok := s.Sessions[from]
	if !ok {
		return nil, ErrUnknownSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	if to != nil {
		if _, ok := s.Sessions[*to]; !ok {
			return []Delivery{{To: from, Msg: types.Alert{Type: types.AlertTargetNotFound}}}, nil
		}
		return []Delivery{{To: *to, Msg: types.ChatMessage{From: from, Text: text, Whisper: true}}}, nil
	}

	msg := types.ChatMessage{From: from, Text: text}
	if sender.Room != nil {
		if room, ok := s.Rooms[*sender.Room]; ok {
			return room.send(msg), nil
		}
	}
	return s.toEveryone(msg), nil
}

func (s *State) CreateRoom(from types.UserID, title string) ([]Delivery, error) {
	sender, ok := s.Sessions[from]
	if !ok {
		return nil, ErrUnknownSession
	}
	// Creating a room from inside a room is not allowed.
	if sender.Room != nil {
		return nil, ErrAlreadyInRoom
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	id, err := s.ids.room(func(id types.RoomID) bool {
		_, taken := s.Rooms[id]
		return taken
	})
	if err != nil {
		return nil, err
	}

	room := newRoom(id, title, from)
	s.Rooms[id] = room
	sender.Room = &room.ID

	out := []Delivery{{To: from, Msg: types.ReadyJoin{Room: room.Full()}}}
	out = append(out, s.toEveryone(types.NewRoom{Room: room.Brief()})...)
	return out, nil
}

func (s *State) GetRoomDetail(from types.UserID, id types.RoomID) ([]Delivery, error) {
	if _, ok := s.Sessions[from]; !ok {
		return nil, ErrUnknownSession
	}
	room, ok := s.Rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return []Delivery{{To: from, Msg: types.RoomDetail{Room: room.Full()}}}, nil
}

func (s *State) JoinRoom(from types.UserID, id types.RoomID) ([]Delivery, error) {
	sender, ok := s.Sessions[from]
	if !ok {
		return nil, ErrUnknownSession
	}
	if sender.Room != nil {
		return nil, ErrAlreadyInRoom
	}
	room, ok := s.Rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.add(from)
	sender.Room = &room.ID

	full := room.Full()
	out := []Delivery{{To: from, Msg: types.ReadyJoin{Room: full}}}
	for _, member := range room.Members {
		out = append(out,
			Delivery{To: member, Msg: types.Alert{Type: types.AlertJoin, User: from}},
			Delivery{To: member, Msg: types.RoomUpdate{Room: full}},
		)
	}
	return out, nil
}

func (s *State) QuitRoom(from types.UserID) ([]Delivery, error) {
	sender, ok := s.Sessions[from]
	if !ok {
		return nil, ErrUnknownSession
	}
	if sender.Room == nil {
		return nil, ErrNotInRoom
	}
	roomID := *sender.Room
	sender.Room = nil

	room, ok := s.Rooms[roomID]
	if !ok {
		// Dangling reference; clearing it above restores the invariant.
		return nil, ErrRoomNotFound
	}

	if room.remove(from) {
		delete(s.Rooms, roomID)
		return s.toEveryone(types.DestroyRoom{Room: roomID}), nil
	}

	full := room.Full()
	var out []Delivery
	for _, member := range room.Members {
		out = append(out,
			Delivery{To: member, Msg: types.Alert{Type: types.AlertQuit, User: from}},
			Delivery{To: member, Msg: types.RoomUpdate{Room: full}},
		)
	}
	return out, nil
}

func (s *State) toEveryone(msg types.ServerMessage) []Delivery {
	ids := s.sessionIDs()
	out := make([]Delivery, 0, len(ids))
	for _, id := range ids {
		out = append(out, Delivery{To: id, Msg: msg})
	}
	return out
}

func (s *State) sessionIDs() []types.UserID {
	return slices.Sorted(maps.Keys(s.Sessions))
}

func (s *State) userBriefs() []types.UserBrief {
	out := make([]types.UserBrief, 0, len(s.Sessions))
	for _, id := range s.sessionIDs() {
		out = append(out, s.Sessions[id].Brief())
	}
	return out
}

func (s *State) roomBriefs() []types.RoomBrief {
	out := make([]types.RoomBrief, 0, len(s.Rooms))
	for _, id := range slices.Sorted(maps.Keys(s.Rooms)) {
		out = append(out, s.Rooms[id].Brief())
	}
	return out
}
