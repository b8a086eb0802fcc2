package http_room

import (
	"github.com/deckset/planningpoker/core/internal/model"
	roomview "github.com/deckset/planningpoker/core/internal/view/room"
)

type RoomUserDTO struct {
	DeviceID      string         `json:"deviceId"`
	Name          string         `json:"name"`
	Choice        *model.Choice  `json:"choice"`
	Voted         bool           `json:"voted"`
	IsParticipant bool           `json:"isParticipant"`
	CardBack      model.CardBack `json:"cardBack,omitempty"`
}

type RoomStateDTO struct {
	Users         map[string]RoomUserDTO `json:"users"`
	ShowResults   bool                   `json:"showResults"`
	Config        model.RoomConfig       `json:"config"`
	AdminDeviceID *model.DeviceID        `json:"adminDeviceId"`
}

// NewRoomStateDTO projects a state for one viewer. Before reveal, an
// observer in a no-snooping room sees who voted but not what; their own
// pick always stays visible.
func NewRoomStateDTO(state *model.RoomState, viewer model.DeviceID) RoomStateDTO {
	canSee := roomview.CanSeeChoices(state, viewer)

	users := make(map[string]RoomUserDTO, len(state.Users))
	for deviceID, user := range state.Users {
		dto := RoomUserDTO{
			DeviceID:      user.DeviceID,
			Name:          user.Name,
			Choice:        user.Choice,
			Voted:         user.Choice != nil,
			IsParticipant: user.IsParticipant,
		}
		if user.Config != nil {
			dto.CardBack = user.Config.CardBack
		}
		if !canSee && deviceID != viewer {
			dto.Choice = nil
		}
		users[deviceID] = dto
	}

	return RoomStateDTO{
		Users:         users,
		ShowResults:   state.ShowResults,
		Config:        state.Config,
		AdminDeviceID: state.AdminDeviceID,
	}
}
