// Package roomstate holds the in-memory room aggregate. A Room wraps one
// RoomState for the duration of a request and exposes every permitted
// mutation, plus a dirty check against the state captured at load time so
// no-op operations skip persistence and broadcast.
package roomstate

import (
	"encoding/json"

	"github.com/deckset/planningpoker/core/internal/model"
)

type Room struct {
	ID    model.RoomID
	State *model.RoomState

	lastSaved []byte
}

// New wraps an existing state and snapshots it for IsModified.
func New(id model.RoomID, state *model.RoomState) *Room {
	r := &Room{
		ID:    id,
		State: state,
	}
	r.MarkSaved()
	return r
}

// NewDefault builds a fresh room. An empty choices slice falls back to the
// default deck. The snapshot is taken empty so the first save always runs.
func NewDefault(id model.RoomID, choices []int, adminDeviceID *model.DeviceID) *Room {
	if len(choices) == 0 {
		choices = model.DefaultChoices
	}
	return &Room{
		ID: id,
		State: &model.RoomState{
			Users:       make(map[model.DeviceID]*model.RoomUser),
			ShowResults: false,
			Config: model.RoomConfig{
				SelectableNumbers:     model.NormalizeChoices(choices),
				AllowObserversToSnoop: false,
				AllowUnknown:          false,
			},
			AdminDeviceID: adminDeviceID,
		},
	}
}

func (r *Room) GetUserFromDeviceID(deviceID model.DeviceID) *model.RoomUser {
	return r.State.Users[deviceID]
}

// JoinOrGet returns the user for deviceID, inserting a blank participant
// entry when none exists. Any lookup during an action implicitly joins the
// room; the second return value reports whether an insert happened.
func (r *Room) JoinOrGet(deviceID model.DeviceID) (*model.RoomUser, bool) {
	if user := r.State.Users[deviceID]; user != nil {
		return user, false
	}

	user := &model.RoomUser{
		DeviceID:      deviceID,
		Name:          "",
		Choice:        nil,
		IsParticipant: true,
	}
	r.State.Users[deviceID] = user
	return user, true
}

func (r *Room) SetAdmin(deviceID model.DeviceID) {
	r.State.AdminDeviceID = &deviceID
}

func (r *Room) IsAdmin(deviceID model.DeviceID) bool {
	return r.State.AdminDeviceID != nil && *r.State.AdminDeviceID == deviceID
}

// SetName does not check uniqueness; callers must consult DeviceIDFromName
// before accepting a name.
func (r *Room) SetName(deviceID model.DeviceID, name string) {
	user, _ := r.JoinOrGet(deviceID)
	user.Name = name
}

// DeviceIDFromName is an exact, case-sensitive scan over the user map.
func (r *Room) DeviceIDFromName(name string) (model.DeviceID, bool) {
	for deviceID, user := range r.State.Users {
		if user.Name == name {
			return deviceID, true
		}
	}
	return model.EmptyDeviceID, false
}

func (r *Room) UserFromName(name string) *model.RoomUser {
	for _, user := range r.State.Users {
		if user.Name == name {
			return user
		}
	}
	return nil
}

func (r *Room) SetChoice(deviceID model.DeviceID, choice *model.Choice) {
	user, _ := r.JoinOrGet(deviceID)
	user.Choice = choice
}

func (r *Room) SetCardBack(deviceID model.DeviceID, cardBack model.CardBack) {
	user, _ := r.JoinOrGet(deviceID)
	if user.Config == nil {
		user.Config = &model.UserConfig{}
	}
	user.Config.CardBack = cardBack
}

func (r *Room) InvertShowResults() {
	r.State.ShowResults = !r.State.ShowResults
}

func (r *Room) InvertAllowSnooping() {
	r.State.Config.AllowObserversToSnoop = !r.State.Config.AllowObserversToSnoop
}

// InvertAllowUnknown toggles the unknown-pick permission. Disabling it
// clears every held unknown pick to null; picks are never reinterpreted as
// a number.
func (r *Room) InvertAllowUnknown() {
	r.State.Config.AllowUnknown = !r.State.Config.AllowUnknown
	if r.State.Config.AllowUnknown {
		return
	}
	for _, user := range r.State.Users {
		if user.Choice != nil && user.Choice.Unknown {
			user.Choice = nil
		}
	}
}

// ClearChoices nulls every pick and hides results again.
func (r *Room) ClearChoices() {
	for _, user := range r.State.Users {
		user.Choice = nil
	}
	r.State.ShowResults = false
}

// UpdateSelectableNumbers replaces the deck. Changing the value set always
// invalidates in-flight picks.
func (r *Room) UpdateSelectableNumbers(choices []int) {
	r.State.Config.SelectableNumbers = model.NormalizeChoices(choices)
	r.ClearChoices()
}

func (r *Room) SetObserver(deviceID model.DeviceID) {
	r.SetParticipation(deviceID, false)
}

func (r *Room) SetParticipant(deviceID model.DeviceID) {
	r.SetParticipation(deviceID, true)
}

func (r *Room) SetParticipation(deviceID model.DeviceID, isParticipant bool) {
	user, _ := r.JoinOrGet(deviceID)
	user.IsParticipant = isParticipant
}

func (r *Room) InvertParticipation(deviceID model.DeviceID) {
	user, _ := r.JoinOrGet(deviceID)
	user.IsParticipant = !user.IsParticipant
}

func (r *Room) RemoveUser(deviceID model.DeviceID) {
	delete(r.State.Users, deviceID)
}

// RemoveUsersNotIn prunes every user absent from the caller-supplied present
// set and returns the pruned device ids. This is the reconciliation hook
// against the presence channel: presence decides liveness, storage only
// remembers preferences.
func (r *Room) RemoveUsersNotIn(present []model.DeviceID) []model.DeviceID {
	presentSet := make(map[model.DeviceID]bool, len(present))
	for _, deviceID := range present {
		presentSet[deviceID] = true
	}

	var removed []model.DeviceID
	for deviceID := range r.State.Users {
		if !presentSet[deviceID] {
			removed = append(removed, deviceID)
		}
	}
	for _, deviceID := range removed {
		r.RemoveUser(deviceID)
	}
	return removed
}

// IsModified reports whether the state diverged from the snapshot captured
// at load time, by structural (serialize-and-compare) equality.
func (r *Room) IsModified() bool {
	current, err := json.Marshal(r.State)
	if err != nil {
		return true
	}
	return string(current) != string(r.lastSaved)
}

// MarkSaved re-captures the snapshot after a successful persist.
func (r *Room) MarkSaved() {
	r.lastSaved, _ = json.Marshal(r.State)
}
