package roomview

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deckset/planningpoker/core/internal/model"
)

func buildState(users map[model.DeviceID]*model.RoomUser, mutate func(*model.RoomState)) *model.RoomState {
	state := &model.RoomState{
		Users: users,
		Config: model.RoomConfig{
			SelectableNumbers: model.DefaultChoices,
		},
	}
	if mutate != nil {
		mutate(state)
	}
	return state
}

func user(deviceID model.DeviceID, name string, participant bool, choice *model.Choice) *model.RoomUser {
	return &model.RoomUser{
		DeviceID:      deviceID,
		Name:          name,
		IsParticipant: participant,
		Choice:        choice,
	}
}

func choicePtr(c model.Choice) *model.Choice {
	return &c
}

func TestProjectMembership(t *testing.T) {
	state := buildState(map[model.DeviceID]*model.RoomUser{
		"device-a": user("device-a", "Bob", true, nil),
		"device-b": user("device-b", "Ann", true, nil),
		"device-c": user("device-c", "", true, nil),
		"device-d": user("device-d", "Dan", true, nil),
	}, nil)

	p := Project(state, []model.DeviceID{"device-a", "device-b", "device-c"}, "device-a")

	names := make([]string, 0, len(p.AllPresentMembers))
	for _, m := range p.AllPresentMembers {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Ann", "Bob"}, names,
		"unnamed and absent users are excluded, members sort by name")
}

func TestProjectPercentVoted(t *testing.T) {
	testCases := []struct {
		name     string
		users    map[model.DeviceID]*model.RoomUser
		present  []model.DeviceID
		expected int
	}{
		{
			name:     "Should be zero with no participants",
			users:    map[model.DeviceID]*model.RoomUser{"device-a": user("device-a", "Ann", false, nil)},
			present:  []model.DeviceID{"device-a"},
			expected: 0,
		},
		{
			name: "Should round to nearest integer",
			users: map[model.DeviceID]*model.RoomUser{
				"device-a": user("device-a", "Ann", true, choicePtr(model.NumberChoice(5))),
				"device-b": user("device-b", "Bob", true, nil),
				"device-c": user("device-c", "Cat", true, nil),
			},
			present:  []model.DeviceID{"device-a", "device-b", "device-c"},
			expected: 33,
		},
		{
			name: "Should ignore observers",
			users: map[model.DeviceID]*model.RoomUser{
				"device-a": user("device-a", "Ann", true, choicePtr(model.NumberChoice(5))),
				"device-b": user("device-b", "Bob", false, nil),
			},
			present:  []model.DeviceID{"device-a", "device-b"},
			expected: 100,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := Project(buildState(tc.users, nil), tc.present, "device-a")
			assert.Equal(t, tc.expected, p.PercentVoted)
		})
	}
}

func TestProjectConsensus(t *testing.T) {
	testCases := []struct {
		name     string
		users    map[model.DeviceID]*model.RoomUser
		expected bool
	}{
		{
			name: "Should achieve consensus when every pick matches",
			users: map[model.DeviceID]*model.RoomUser{
				"device-a": user("device-a", "Ann", true, choicePtr(model.NumberChoice(5))),
				"device-b": user("device-b", "Bob", true, choicePtr(model.NumberChoice(5))),
			},
			expected: true,
		},
		{
			name: "Should fail consensus on differing picks",
			users: map[model.DeviceID]*model.RoomUser{
				"device-a": user("device-a", "Ann", true, choicePtr(model.NumberChoice(2))),
				"device-b": user("device-b", "Bob", true, choicePtr(model.NumberChoice(3))),
			},
			expected: false,
		},
		{
			name: "Should fail consensus while someone has not voted",
			users: map[model.DeviceID]*model.RoomUser{
				"device-a": user("device-a", "Ann", true, choicePtr(model.NumberChoice(5))),
				"device-b": user("device-b", "Bob", true, nil),
			},
			expected: false,
		},
		{
			name: "Should count a unanimous unknown as consensus",
			users: map[model.DeviceID]*model.RoomUser{
				"device-a": user("device-a", "Ann", true, choicePtr(model.UnknownChoice())),
				"device-b": user("device-b", "Bob", true, choicePtr(model.UnknownChoice())),
			},
			expected: true,
		},
		{
			name: "Should fail consensus with zero participants",
			users: map[model.DeviceID]*model.RoomUser{
				"device-a": user("device-a", "Ann", false, nil),
			},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			present := make([]model.DeviceID, 0, len(tc.users))
			for deviceID := range tc.users {
				present = append(present, deviceID)
			}
			p := Project(buildState(tc.users, nil), present, "device-a")
			assert.Equal(t, tc.expected, p.ConsensusAchieved)
		})
	}
}

func TestProjectViewerFlags(t *testing.T) {
	admin := model.DeviceID("device-a")
	state := buildState(map[model.DeviceID]*model.RoomUser{
		"device-a": user("device-a", "Ann", true, nil),
		"device-b": user("device-b", "Bob", false, nil),
	}, func(s *model.RoomState) {
		s.AdminDeviceID = &admin
	})
	present := []model.DeviceID{"device-a", "device-b"}

	p := Project(state, present, "device-a")
	assert.True(t, p.IsParticipating)
	assert.False(t, p.IsObserving)
	assert.True(t, p.IsRoomAdmin)

	p = Project(state, present, "device-b")
	assert.False(t, p.IsParticipating)
	assert.True(t, p.IsObserving)
	assert.False(t, p.IsRoomAdmin)
}

func TestProjectSelectableChoices(t *testing.T) {
	state := buildState(nil, func(s *model.RoomState) {
		s.Config.SelectableNumbers = []int{2, 5}
	})

	p := Project(state, nil, "device-a")
	assert.Equal(t, []model.Choice{model.NumberChoice(2), model.NumberChoice(5)}, p.SelectableChoices)

	state.Config.AllowUnknown = true
	p = Project(state, nil, "device-a")
	assert.Equal(t,
		[]model.Choice{model.UnknownChoice(), model.NumberChoice(2), model.NumberChoice(5)},
		p.SelectableChoices, "the unknown card leads the deck when enabled")
}

func TestCanSeeChoices(t *testing.T) {
	users := map[model.DeviceID]*model.RoomUser{
		"device-a": user("device-a", "Ann", true, nil),
		"device-b": user("device-b", "Bob", false, nil),
	}

	state := buildState(users, nil)
	assert.True(t, CanSeeChoices(state, "device-a"), "participants always see picks")
	assert.False(t, CanSeeChoices(state, "device-b"), "observers wait for the reveal")
	assert.False(t, CanSeeChoices(state, "device-z"), "strangers wait for the reveal")

	state = buildState(users, func(s *model.RoomState) { s.ShowResults = true })
	assert.True(t, CanSeeChoices(state, "device-b"))

	state = buildState(users, func(s *model.RoomState) { s.Config.AllowObserversToSnoop = true })
	assert.True(t, CanSeeChoices(state, "device-b"))
}
