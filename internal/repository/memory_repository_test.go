package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/domain"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func TestPresenceRepository_ReturnsCopies(t *testing.T) {
	repo := NewPresenceRepository()
	repo.Put(&domain.Presence{UserID: "alice", Status: domain.PresenceOnline, Metadata: map[string]string{"device": "web"}})

	got, ok := repo.Get("alice")
	require.True(t, ok)
	got.Status = domain.PresenceBusy
	got.Metadata["device"] = "ios"

	again, _ := repo.Get("alice")
	assert.Equal(t, domain.PresenceOnline, again.Status)
	assert.Equal(t, "web", again.Metadata["device"])

	repo.Delete("alice")
	_, ok = repo.Get("alice")
	assert.False(t, ok)
	assert.Empty(t, repo.List())
}

func TestRoomRepository_IndexesMembers(t *testing.T) {
	repo := NewRoomRepository()
	room := domain.NewRoom("task:42", domain.RoomTypeTask, epoch)
	room.Members["alice"] = &domain.RoomMember{UserID: "alice", Role: domain.RoleParticipant}
	room.Members["bob"] = &domain.RoomMember{UserID: "bob", Role: domain.RoleObserver}
	repo.Save(room)

	roomID, ok := repo.RoomOf("bob")
	require.True(t, ok)
	assert.Equal(t, "task:42", roomID)
	assert.Equal(t, 1, repo.Count())

	delete(room.Members, "bob")
	repo.Save(room)
	_, ok = repo.RoomOf("bob")
	assert.False(t, ok, "members dropped on save are unindexed")

	repo.Delete("task:42")
	_, ok = repo.Get("task:42")
	assert.False(t, ok)
	_, ok = repo.RoomOf("alice")
	assert.False(t, ok)
	assert.Zero(t, repo.Count())
}

func TestRoomRepository_GetReturnsDeepCopy(t *testing.T) {
	repo := NewRoomRepository()
	room := domain.NewRoom("r", domain.RoomTypeChat, epoch)
	room.Members["alice"] = &domain.RoomMember{UserID: "alice"}
	repo.Save(room)

	got, _ := repo.Get("r")
	delete(got.Members, "alice")

	again, _ := repo.Get("r")
	assert.Len(t, again.Members, 1)
}

func TestDeliveryRepository_ForwardOnly(t *testing.T) {
	repo := NewDeliveryRepository()
	repo.Create([]domain.DeliveryStatus{
		{MessageID: "m1", RecipientID: "bob", SenderID: "alice", Status: domain.DeliverySent, CreatedAt: epoch},
	})

	_, ok := repo.Advance("m1", "bob", domain.DeliverySent, epoch)
	assert.False(t, ok, "same state is not an advance")

	got, ok := repo.Advance("m1", "bob", domain.DeliveryRead, epoch.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, domain.DeliveryRead, got.Status)

	_, ok = repo.Advance("m1", "bob", domain.DeliveryDelivered, epoch.Add(2*time.Second))
	assert.False(t, ok, "states never move backwards")

	_, ok = repo.Advance("m1", "carol", domain.DeliveryRead, epoch)
	assert.False(t, ok)

	// a second Create for an existing record is ignored
	repo.Create([]domain.DeliveryStatus{{MessageID: "m1", RecipientID: "bob", Status: domain.DeliverySent, CreatedAt: epoch}})
	current, _ := repo.Get("m1", "bob")
	assert.Equal(t, domain.DeliveryRead, current.Status)
}

func TestDeliveryRepository_DeleteOlderThan(t *testing.T) {
	repo := NewDeliveryRepository()
	repo.Create([]domain.DeliveryStatus{
		{MessageID: "old", RecipientID: "bob", CreatedAt: epoch},
		{MessageID: "old", RecipientID: "carol", CreatedAt: epoch},
		{MessageID: "new", RecipientID: "bob", CreatedAt: epoch.Add(time.Hour)},
	})

	assert.Equal(t, 2, repo.DeleteOlderThan(epoch.Add(time.Minute)))
	assert.Equal(t, 1, repo.Len())
	assert.Empty(t, repo.ForMessage("old"))
	assert.Len(t, repo.ForMessage("new"), 1)
}

func TestTypingRepository(t *testing.T) {
	repo := NewTypingRepository()
	repo.Put(domain.TypingIndicator{UserID: "alice", RoomID: "a", IsTyping: true, UpdatedAt: epoch})
	repo.Put(domain.TypingIndicator{UserID: "alice", RoomID: "b", IsTyping: true, UpdatedAt: epoch})
	repo.Put(domain.TypingIndicator{UserID: "bob", RoomID: "a", IsTyping: true, UpdatedAt: epoch})

	assert.Len(t, repo.ByUser("alice"), 2)
	assert.Len(t, repo.List(), 3)

	assert.True(t, repo.Delete(TypingKey{UserID: "alice", RoomID: "a"}))
	assert.False(t, repo.Delete(TypingKey{UserID: "alice", RoomID: "a"}))
	_, ok := repo.Get(TypingKey{UserID: "bob", RoomID: "a"})
	assert.True(t, ok)
}
