package engine

import (
	"errors"
	"math/rand/v2"

	"github.com/DoyleJ11/kiwitu-chat/pkg/types"
)

var ErrIdentitiesExhausted = errors.New("identity space exhausted")

const (
	nameAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	nameLen      = 4

	// UserSpace is the number of distinct guest identities: one per guest name.
	UserSpace = 62 * 62 * 62 * 62

	DefaultRoomLimit = 1000

	randomDraws = 32
)

type Option func(*State)

// WithRoomLimit bounds room identities to [0, n).
func WithRoomLimit(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.ids.roomSpace = uint32(n)
		}
	}
}

// WithUserLimit bounds user identities to [0, n). n is capped at UserSpace.
func WithUserLimit(n int) Option {
	return func(s *State) {
		if n > 0 && n <= UserSpace {
			s.ids.userSpace = uint32(n)
		}
	}
}

func WithRand(r *rand.Rand) Option {
	return func(s *State) {
		if r != nil {
			s.ids.rng = r
		}
	}
}

// GuestName encodes id in base 62, least significant digit first.
func GuestName(id types.UserID) string {
	name := make([]byte, 0, len("GUEST_")+nameLen)
	name = append(name, "GUEST_"...)
	n := uint32(id)
	for range nameLen {
		name = append(name, nameAlphabet[n%uint32(len(nameAlphabet))])
		n /= uint32(len(nameAlphabet))
	}
	return string(name)
}

// allocator draws identities at random from a bounded range and never hands
// out one that is still live.
type allocator struct {
	rng       *rand.Rand
	userSpace uint32
	roomSpace uint32
}

func newAllocator() *allocator {
	return &allocator{
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		userSpace: UserSpace,
		roomSpace: DefaultRoomLimit,
	}
}

func (a *allocator) user(taken func(types.UserID) bool) (types.UserID, error) {
	n, err := a.draw(a.userSpace, func(n uint32) bool { return taken(types.UserID(n)) })
	return types.UserID(n), err
}

func (a *allocator) room(taken func(types.RoomID) bool) (types.RoomID, error) {
	n, err := a.draw(a.roomSpace, func(n uint32) bool { return taken(types.RoomID(n)) })
	return types.RoomID(n), err
}

// draw tries a handful of random picks, then probes linearly from a random
// start so a nearly full space still terminates.
func (a *allocator) draw(space uint32, taken func(uint32) bool) (uint32, error) {
	for range randomDraws {
		n := a.rng.Uint32N(space)
		if !taken(n) {
			return n, nil
		}
	}
	start := a.rng.Uint32N(space)
	for i := range space {
		n := (start + i) % space
		if !taken(n) {
			return n, nil
		}
	}
	return 0, ErrIdentitiesExhausted
}
