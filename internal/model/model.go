package model

import (
	"sort"

	"github.com/google/uuid"
)

type RoomID = string

type DeviceID = string

const (
	EmptyRoomID   RoomID   = ""
	EmptyDeviceID DeviceID = ""
)

func NewRoomID() RoomID {
	return uuid.New().String()
}

// ChannelName is the broadcast address for a room. Publishers and
// subscribers derive it independently, so it must stay deterministic.
func ChannelName(roomID RoomID) string {
	return "presence-" + roomID
}

var DefaultChoices = []int{2, 5, 8, 13}

// NormalizeChoices sorts ascending and drops duplicates.
func NormalizeChoices(choices []int) []int {
	seen := make(map[int]bool, len(choices))
	normalized := make([]int, 0, len(choices))
	for _, c := range choices {
		if seen[c] {
			continue
		}
		seen[c] = true
		normalized = append(normalized, c)
	}
	sort.Ints(normalized)
	return normalized
}

type UserConfig struct {
	CardBack CardBack `json:"cardBack,omitempty"`
}

type RoomUser struct {
	DeviceID      DeviceID    `json:"deviceId"`
	Name          string      `json:"name"`
	Choice        *Choice     `json:"choice"`
	IsParticipant bool        `json:"isParticipant"`
	Config        *UserConfig `json:"config,omitempty"`
}

type RoomConfig struct {
	SelectableNumbers     []int `json:"selectableNumbers"`
	AllowObserversToSnoop bool  `json:"allowObserversToSnoop"`
	AllowUnknown          bool  `json:"allowUnknown"`
}

type RoomState struct {
	Users         map[DeviceID]*RoomUser `json:"users"`
	ShowResults   bool                   `json:"showResults"`
	Config        RoomConfig             `json:"config"`
	AdminDeviceID *DeviceID              `json:"adminDeviceId"`
}
