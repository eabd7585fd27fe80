package engine

import (
	"slices"

	"github.com/DoyleJ11/kiwitu-chat/pkg/types"
)

// Room members are kept in join order; the first remaining member inherits
// ownership when the owner leaves.
type Room struct {
	ID      types.RoomID
	Title   string
	Members []types.UserID
	Owner   types.UserID
}

func newRoom(id types.RoomID, title string, owner types.UserID) *Room {
	return &Room{
		ID:      id,
		Title:   title,
		Members: []types.UserID{owner},
		Owner:   owner,
	}
}

func (r *Room) Has(id types.UserID) bool {
	return slices.Contains(r.Members, id)
}

func (r *Room) add(id types.UserID) {
	if r.Has(id) {
		return
	}
	r.Members = append(r.Members, id)
}

// remove drops id from the member list and reports whether the room is now empty.
func (r *Room) remove(id types.UserID) bool {
	r.Members = slices.DeleteFunc(r.Members, func(m types.UserID) bool { return m == id })
	if len(r.Members) == 0 {
		return true
	}
	if r.Owner == id {
		r.Owner = r.Members[0]
	}
	return false
}

func (r *Room) send(msg types.ServerMessage) []Delivery {
	out := make([]Delivery, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, Delivery{To: m, Msg: msg})
	}
	return out
}

func (r *Room) Brief() types.RoomBrief {
	return types.RoomBrief{ID: r.ID, Title: r.Title}
}

func (r *Room) Full() types.Room {
	return types.Room{
		ID:      r.ID,
		Title:   r.Title,
		Owner:   r.Owner,
		Members: slices.Clone(r.Members),
	}
}
