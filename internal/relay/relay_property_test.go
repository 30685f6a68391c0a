package relay

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBroadcastOriginExclusionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// For any room size and update payload, a dispatch from one member
	// reaches every other member exactly once and the originator never.
	properties.Property("updates reach all members except the origin", prop.ForAll(
		func(numClients int, update []byte) bool {
			reg := NewRegistry(nil)
			room := reg.GetOrCreate("prop-room")

			clients := make([]*Client, numClients)
			for i := range clients {
				clients[i] = NewClient(nil, "prop-room")
				if !room.Admit(clients[i]) {
					return false
				}
				drain(clients[i])
			}

			room.Dispatch(clients[0], syncUpdateFrame(update))

			if recv(clients[0]) != nil {
				return false
			}
			for _, c := range clients[1:] {
				if recv(c) == nil {
					return false
				}
				if recv(c) != nil {
					return false // duplicate delivery
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("presence deltas reach all members except the origin", prop.ForAll(
		func(numClients int, clientID uint64) bool {
			reg := NewRegistry(nil)
			room := reg.GetOrCreate("prop-room")

			clients := make([]*Client, numClients)
			for i := range clients {
				clients[i] = NewClient(nil, "prop-room")
				if !room.Admit(clients[i]) {
					return false
				}
				drain(clients[i])
			}

			room.Dispatch(clients[0], presenceFrame(clientID, 1, `{"x":1}`))

			if recv(clients[0]) != nil {
				return false
			}
			for _, c := range clients[1:] {
				if recv(c) == nil {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestRegistryIdentityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Resolving the same name twice yields the identical instance as long
	// as the room keeps at least one member.
	properties.Property("getOrCreate is idempotent per name", prop.ForAll(
		func(name string) bool {
			if name == "" {
				name = "default"
			}
			reg := NewRegistry(nil)
			room := reg.GetOrCreate(name)
			c := NewClient(nil, name)
			if !room.Admit(c) {
				return false
			}
			return reg.GetOrCreate(name) == room
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
