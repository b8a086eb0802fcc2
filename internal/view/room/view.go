// Package roomview computes the client-side derived view: read-only
// projections of a replicated room state against a live presence map. All
// values are pure recomputations of the two source signals; nothing here
// mutates the state or caches between calls.
package roomview

import (
	"math"
	"sort"

	"github.com/deckset/planningpoker/core/internal/model"
)

type Projection struct {
	AllPresentMembers    []*model.RoomUser
	Participants         []*model.RoomUser
	ParticipantsVoted    []*model.RoomUser
	ParticipantsNotVoted []*model.RoomUser
	PercentVoted         int
	ConsensusAchieved    bool
	SelectableChoices    []model.Choice
	IsObserving          bool
	IsParticipating      bool
	IsRoomAdmin          bool
}

// Project derives every read projection for a viewer device. Members are
// ordered by name, then device id, so repeated projections of the same
// inputs are identical.
func Project(state *model.RoomState, present []model.DeviceID, viewer model.DeviceID) Projection {
	presentSet := make(map[model.DeviceID]bool, len(present))
	for _, deviceID := range present {
		presentSet[deviceID] = true
	}

	var members []*model.RoomUser
	for deviceID, user := range state.Users {
		if presentSet[deviceID] && user.Name != "" {
			members = append(members, user)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].DeviceID < members[j].DeviceID
	})

	p := Projection{
		AllPresentMembers: members,
		SelectableChoices: selectableChoices(state.Config),
	}

	for _, user := range members {
		if !user.IsParticipant {
			continue
		}
		p.Participants = append(p.Participants, user)
		if user.Choice != nil {
			p.ParticipantsVoted = append(p.ParticipantsVoted, user)
		} else {
			p.ParticipantsNotVoted = append(p.ParticipantsNotVoted, user)
		}
	}

	if len(p.Participants) > 0 {
		p.PercentVoted = int(math.Round(100 * float64(len(p.ParticipantsVoted)) / float64(len(p.Participants))))
	}
	p.ConsensusAchieved = consensus(p.PercentVoted, p.ParticipantsVoted)

	if viewerUser := state.Users[viewer]; viewerUser != nil {
		p.IsObserving = !viewerUser.IsParticipant
		p.IsParticipating = viewerUser.IsParticipant
	}
	p.IsRoomAdmin = state.AdminDeviceID != nil && *state.AdminDeviceID == viewer

	return p
}

// CanSeeChoices reports whether the viewer may see live picks: after reveal
// everyone can, before it only participants, unless observer snooping is on.
func CanSeeChoices(state *model.RoomState, viewer model.DeviceID) bool {
	if state.ShowResults || state.Config.AllowObserversToSnoop {
		return true
	}
	user := state.Users[viewer]
	return user != nil && user.IsParticipant
}

// Consensus requires every participant to have voted and every pick to equal
// the first one. An unanimous unknown counts; an empty vote set does not.
func consensus(percentVoted int, voted []*model.RoomUser) bool {
	if percentVoted != 100 || len(voted) == 0 {
		return false
	}
	first := *voted[0].Choice
	for _, user := range voted[1:] {
		if !user.Choice.Equal(first) {
			return false
		}
	}
	return true
}

func selectableChoices(cfg model.RoomConfig) []model.Choice {
	choices := make([]model.Choice, 0, len(cfg.SelectableNumbers)+1)
	if cfg.AllowUnknown {
		choices = append(choices, model.UnknownChoice())
	}
	for _, n := range cfg.SelectableNumbers {
		choices = append(choices, model.NumberChoice(n))
	}
	return choices
}
