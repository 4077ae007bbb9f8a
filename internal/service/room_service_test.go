package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/apperror"
	"realtime-service/internal/domain"
)

func TestRoleFor(t *testing.T) {
	tests := []struct {
		name        string
		permissions []string
		want        domain.MemberRole
	}{
		{"none", nil, domain.RoleParticipant},
		{"admin", []string{"admin"}, domain.RoleOwner},
		{"read only", []string{"read_only"}, domain.RoleObserver},
		{"admin wins over read only", []string{"read_only", "admin"}, domain.RoleOwner},
		{"unknown markers", []string{"write"}, domain.RoleParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleFor(tt.permissions))
		})
	}
}

func TestRoom_JoinCreatesRoomAndNotifies(t *testing.T) {
	c := newCoordinator()

	room, role, err := c.rooms.Join("alice", "c1", "task:42", domain.RoomTypeTask, []string{"admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, role)
	assert.Equal(t, domain.RoomTypeTask, room.Type)
	assert.True(t, c.broadcaster.Subscribed("c1", "task:42"))

	_, _, err = c.rooms.Join("bob", "c2", "task:42", domain.RoomTypeTask, nil)
	require.NoError(t, err)

	joined := c.broadcaster.Events(domain.EventUserJoined)
	require.Len(t, joined, 2)
	second := joined[1].Payload.(domain.MembershipPayload)
	assert.Equal(t, "bob", second.UserID)
	assert.Equal(t, 2, second.MemberCount)
	assert.Equal(t, []string{"bob"}, joined[1].Exclude)

	acks := c.broadcaster.Events(domain.EventRoomJoined)
	require.Len(t, acks, 2)
	assert.Equal(t, []string{"c2"}, acks[1].Targets)
}

func TestRoom_JoinLeavesPreviousRoom(t *testing.T) {
	c := newCoordinator()
	_, _, err := c.rooms.Join("alice", "c1", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)
	_, _, err = c.rooms.Join("bob", "c2", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)

	_, _, err = c.rooms.Join("alice", "c1", "room-b", domain.RoomTypeChat, nil)
	require.NoError(t, err)

	current, ok := c.rooms.RoomOf("alice")
	require.True(t, ok)
	assert.Equal(t, "room-b", current)
	assert.False(t, c.broadcaster.Subscribed("c1", "room-a"))

	roomA, err := c.rooms.GetRoom("room-a")
	require.NoError(t, err)
	assert.Len(t, roomA.Members, 1)

	left := c.broadcaster.Events(domain.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, 1, left[0].Payload.(domain.MembershipPayload).MemberCount)
	assert.Len(t, c.broadcaster.Events(domain.EventRoomLeft), 1)
}

func TestRoom_RejoinSameRoomIsIdempotent(t *testing.T) {
	c := newCoordinator()
	_, _, err := c.rooms.Join("alice", "c1", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)

	room, _, err := c.rooms.Join("alice", "c1", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)

	assert.Len(t, room.Members, 1)
	assert.Len(t, c.broadcaster.Events(domain.EventUserJoined), 1)
	assert.Empty(t, c.broadcaster.Events(domain.EventUserLeft))
}

func TestRoom_LastLeaveDeletesRoom(t *testing.T) {
	c := newCoordinator()
	_, _, err := c.rooms.Join("alice", "c1", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)

	require.NoError(t, c.rooms.Leave("alice", "room-a"))

	_, err = c.rooms.GetRoom("room-a")
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
	assert.Equal(t, 0, c.rooms.Count())
	// nobody is left to hear user_left
	assert.Empty(t, c.broadcaster.Events(domain.EventUserLeft))
	assert.Len(t, c.broadcaster.Events(domain.EventRoomLeft), 1)
}

func TestRoom_LeaveNotMemberIsNotFound(t *testing.T) {
	c := newCoordinator()
	_, _, err := c.rooms.Join("alice", "c1", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)

	err = c.rooms.Leave("alice", "room-b")
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))

	err = c.rooms.Leave("bob", "room-a")
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestRoom_JoinValidation(t *testing.T) {
	c := newCoordinator()

	_, _, err := c.rooms.Join("alice", "c1", "", domain.RoomTypeChat, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, _, err = c.rooms.Join("alice", "c1", "room-a", domain.RoomType("lobby"), nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	room, _, err := c.rooms.Join("alice", "c1", "room-a", "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomTypeChat, room.Type)
}

func TestRoom_LeaveConnectionIgnoresStaleConnection(t *testing.T) {
	c := newCoordinator()
	_, _, err := c.rooms.Join("alice", "c1", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)
	// a newer connection of the same user rebinds the membership
	_, _, err = c.rooms.Join("alice", "c2", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)

	_, ok := c.rooms.LeaveConnection("alice", "c1")
	assert.False(t, ok)
	assert.True(t, c.rooms.IsMember("alice", "room-a"))

	roomID, ok := c.rooms.LeaveConnection("alice", "c2")
	assert.True(t, ok)
	assert.Equal(t, "room-a", roomID)
	assert.False(t, c.rooms.IsMember("alice", "room-a"))
}

func TestRoom_TouchUpdatesLastActivity(t *testing.T) {
	c := newCoordinator()
	_, _, err := c.rooms.Join("alice", "c1", "room-a", domain.RoomTypeChat, nil)
	require.NoError(t, err)

	c.clock.Advance(5 * time.Minute)
	c.rooms.Touch("room-a")

	room, err := c.rooms.GetRoom("room-a")
	require.NoError(t, err)
	assert.Equal(t, c.clock.Now(), room.LastActivity)
	assert.True(t, room.CreatedAt.Before(room.LastActivity))
}
