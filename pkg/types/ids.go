// Package types is the wire vocabulary shared by the server and its clients.
package types

type (
	UserID uint32
	RoomID uint32
)

type UserBrief struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

type RoomBrief struct {
	ID    RoomID `json:"id"`
	Title string `json:"title"`
}

// Room is the full record of a room as seen by clients.
type Room struct {
	ID      RoomID   `json:"id"`
	Title   string   `json:"title"`
	Owner   UserID   `json:"owner"`
	Members []UserID `json:"members"`
}

func (r Room) Brief() RoomBrief {
	return RoomBrief{ID: r.ID, Title: r.Title}
}

type AlertKind string

const (
	AlertTargetNotFound AlertKind = "TargetNotFound"
	AlertJoin           AlertKind = "Join"
	AlertQuit           AlertKind = "Quit"
)

// Alert is an informational event. User is only meaningful for Join and Quit.
type Alert struct {
	Type AlertKind
	User UserID
}
