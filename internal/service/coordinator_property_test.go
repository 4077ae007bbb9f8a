package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"realtime-service/internal/domain"
)

var propertyUsers = []string{"u0", "u1", "u2", "u3"}

// For any sequence of joins and leaves, every user is in at most one room,
// every live room has members, and the user index agrees with room membership.
func TestProperty_OneActiveRoomPerUser(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("room directory stays consistent", prop.ForAll(
		func(ops []int) bool {
			c := newCoordinator()
			for _, op := range ops {
				user := propertyUsers[op%len(propertyUsers)]
				action := (op / len(propertyUsers)) % 6
				connID := "conn-" + user
				if action == 5 {
					if current, ok := c.rooms.RoomOf(user); ok {
						_ = c.rooms.Leave(user, current)
					}
				} else {
					_, _, _ = c.rooms.Join(user, connID, fmt.Sprintf("room-%d", action), domain.RoomTypeChat, nil)
				}

				live := 0
				for i := 0; i < 5; i++ {
					room, err := c.rooms.GetRoom(fmt.Sprintf("room-%d", i))
					if err != nil {
						continue
					}
					live++
					if len(room.Members) == 0 {
						return false
					}
					for memberID := range room.Members {
						if current, _ := c.rooms.RoomOf(memberID); current != room.ID {
							return false
						}
					}
				}
				if live != c.rooms.Count() {
					return false
				}
				for _, user := range propertyUsers {
					if current, ok := c.rooms.RoomOf(user); ok && !c.rooms.IsMember(user, current) {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 99)),
	))

	properties.TestingRun(t)
}

// markRead never moves a delivery backwards and notifies the sender at most
// once per recipient.
func TestProperty_MarkReadIsForwardOnly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("read receipts are idempotent", prop.ForAll(
		func(readers []int) bool {
			c := newCoordinator()
			for _, user := range propertyUsers {
				c.connect(user, "conn-"+user)
				if _, _, err := c.rooms.Join(user, "conn-"+user, "room", domain.RoomTypeChat, nil); err != nil {
					return false
				}
			}
			msg, err := c.messages.Send(context.Background(), "u0", "room", "hi", domain.MessageTypeText, nil)
			if err != nil {
				return false
			}

			read := make(map[string]bool)
			for _, r := range readers {
				reader := propertyUsers[r%len(propertyUsers)]
				changed, err := c.messages.MarkRead(msg.ID, reader)
				if err != nil {
					return false
				}
				// the sender has no record, everyone else changes exactly once
				expected := reader != "u0" && !read[reader]
				if changed != expected {
					return false
				}
				if reader != "u0" {
					read[reader] = true
				}
			}

			for _, d := range c.messages.Deliveries(msg.ID) {
				if read[d.RecipientID] != (d.Status == domain.DeliveryRead) {
					return false
				}
			}
			return len(c.broadcaster.Events(domain.EventMessageRead)) == len(read)
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.TestingRun(t)
}

// A reconnect inside the grace period never produces an offline broadcast;
// one after it produces exactly one offline and one online.
func TestProperty_GracePeriod(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("offline only after the full grace period", prop.ForAll(
		func(seconds int) bool {
			c := newCoordinator()
			c.connect("alice", "c1")
			c.presence.ScheduleOffline("alice", "c1", "")
			c.clock.Advance(time.Duration(seconds) * time.Second)
			c.connect("alice", "c2")
			c.clock.Advance(time.Minute)

			statuses := presenceStatuses(c.broadcaster)
			if seconds < 30 {
				return len(statuses) == 1
			}
			return len(statuses) == 3 &&
				statuses[1] == domain.PresenceOffline &&
				statuses[2] == domain.PresenceOnline
		},
		gen.IntRange(0, 90),
	))

	properties.TestingRun(t)
}
