package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/apperror"
	"realtime-service/internal/domain"
)

func presenceStatuses(b *MockBroadcaster) []domain.PresenceStatus {
	var out []domain.PresenceStatus
	for _, e := range b.Events(domain.EventPresenceUpdate) {
		out = append(out, e.Payload.(domain.PresenceUpdatePayload).Status)
	}
	return out
}

func TestPresence_SetOnlineBroadcastsToPersonalRoom(t *testing.T) {
	c := newCoordinator()

	p := c.presence.SetOnline("alice", "c1", map[string]string{"device": "web"})

	assert.Equal(t, domain.PresenceOnline, p.Status)
	updates := c.broadcaster.Events(domain.EventPresenceUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"user:alice"}, updates[0].Targets)
}

func TestPresence_ReconnectWithinGraceIsSilent(t *testing.T) {
	c := newCoordinator()
	c.connect("alice", "c1")

	assert.True(t, c.presence.ScheduleOffline("alice", "c1", ""))
	c.clock.Advance(10 * time.Second)
	c.connect("alice", "c2")
	c.clock.Advance(time.Minute)

	assert.Equal(t, []domain.PresenceStatus{domain.PresenceOnline}, presenceStatuses(c.broadcaster))
	p, ok := c.presence.Get("alice")
	require.True(t, ok)
	assert.Equal(t, domain.PresenceOnline, p.Status)
	assert.Equal(t, "c2", p.ConnectionID)
	assert.Equal(t, 0, c.clock.Pending())
}

func TestPresence_OfflineAfterGraceThenOnline(t *testing.T) {
	c := newCoordinator()
	c.connect("alice", "c1")
	c.presence.ScheduleOffline("alice", "c1", "")

	c.clock.Advance(29 * time.Second)
	_, ok := c.presence.Get("alice")
	assert.True(t, ok, "still online inside the grace period")

	c.clock.Advance(time.Second)
	_, ok = c.presence.Get("alice")
	assert.False(t, ok)

	c.connect("alice", "c2")
	assert.Equal(t, []domain.PresenceStatus{
		domain.PresenceOnline,
		domain.PresenceOffline,
		domain.PresenceOnline,
	}, presenceStatuses(c.broadcaster))
}

func TestPresence_StaleConnectionCannotScheduleOffline(t *testing.T) {
	c := newCoordinator()
	c.connect("alice", "c1")
	c.connect("alice", "c2")

	assert.False(t, c.presence.ScheduleOffline("alice", "c1", ""))
	c.clock.Advance(time.Minute)

	_, ok := c.presence.Get("alice")
	assert.True(t, ok)
	assert.Len(t, presenceStatuses(c.broadcaster), 1)
}

func TestPresence_OfflineReachesLastRoom(t *testing.T) {
	c := newCoordinator()
	c.connect("alice", "c1")
	c.connect("bob", "c2")
	_, _, err := c.rooms.Join("alice", "c1", "task:42", domain.RoomTypeTask, nil)
	require.NoError(t, err)

	roomID, _ := c.rooms.LeaveConnection("alice", "c1")
	c.presence.ScheduleOffline("alice", "c1", roomID)
	c.clock.Advance(30 * time.Second)

	updates := c.broadcaster.Events(domain.EventPresenceUpdate)
	last := updates[len(updates)-1]
	assert.Equal(t, domain.PresenceOffline, last.Payload.(domain.PresenceUpdatePayload).Status)
	assert.Contains(t, last.Targets, "task:42")
	assert.Contains(t, last.Targets, "user:alice")
}

func TestPresence_UpdateStatus(t *testing.T) {
	c := newCoordinator()
	c.connect("alice", "c1")

	p, err := c.presence.UpdateStatus("alice", domain.PresenceAway, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceAway, p.Status)

	_, err = c.presence.UpdateStatus("alice", domain.PresenceAway, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.PresenceStatus{domain.PresenceOnline, domain.PresenceAway}, presenceStatuses(c.broadcaster))

	_, err = c.presence.UpdateStatus("alice", domain.PresenceOffline, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = c.presence.UpdateStatus("nobody", domain.PresenceBusy, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestPresence_ReconnectKeepsChosenStatus(t *testing.T) {
	c := newCoordinator()
	c.connect("alice", "c1")
	_, err := c.presence.UpdateStatus("alice", domain.PresenceBusy, nil)
	require.NoError(t, err)

	c.presence.ScheduleOffline("alice", "c1", "")
	c.connect("alice", "c2")

	p, _ := c.presence.Get("alice")
	assert.Equal(t, domain.PresenceBusy, p.Status)
}

func TestPresence_CancelScheduledOffline(t *testing.T) {
	c := newCoordinator()
	c.connect("alice", "c1")
	c.presence.ScheduleOffline("alice", "c1", "")

	assert.True(t, c.presence.CancelScheduledOffline("alice"))
	assert.False(t, c.presence.CancelScheduledOffline("alice"))
	c.clock.Advance(time.Minute)

	_, ok := c.presence.Get("alice")
	assert.True(t, ok)
}

func TestPresence_PruneDepartures(t *testing.T) {
	c := newCoordinator()
	c.connect("alice", "c1")
	c.presence.ScheduleOffline("alice", "c1", "room-1")

	assert.Equal(t, 0, c.presence.PruneDepartures(time.Second), "pending users keep their last room")

	c.clock.Advance(30 * time.Second)
	c.clock.Advance(time.Hour)
	assert.Equal(t, 1, c.presence.PruneDepartures(time.Minute))
}
