package model

import (
	"encoding/json"
	"errors"
	"strconv"
)

// UnknownMarker is the wire form of a non-numeric "I don't know" pick.
const UnknownMarker = "?"

var ErrBadChoice = errors.New("malformed choice")

// Choice is a single pick: either a number from the selectable set or the
// unknown marker. "No pick yet" is a nil *Choice, which keeps the stored
// JSON shape as number | "?" | null.
type Choice struct {
	Unknown bool
	Number  int
}

func NumberChoice(n int) Choice {
	return Choice{Number: n}
}

func UnknownChoice() Choice {
	return Choice{Unknown: true}
}

func (c Choice) Equal(other Choice) bool {
	if c.Unknown || other.Unknown {
		return c.Unknown == other.Unknown
	}
	return c.Number == other.Number
}

func (c Choice) String() string {
	if c.Unknown {
		return UnknownMarker
	}
	return strconv.Itoa(c.Number)
}

// ParseChoice parses raw form input. It does not check the value against a
// room's selectable set; that belongs to the caller.
func ParseChoice(raw string) (Choice, error) {
	if raw == UnknownMarker {
		return UnknownChoice(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Choice{}, ErrBadChoice
	}
	return NumberChoice(n), nil
}

func (c Choice) MarshalJSON() ([]byte, error) {
	if c.Unknown {
		return json.Marshal(UnknownMarker)
	}
	return json.Marshal(c.Number)
}

func (c *Choice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != UnknownMarker {
			return ErrBadChoice
		}
		*c = UnknownChoice()
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrBadChoice
	}
	*c = NumberChoice(n)
	return nil
}
