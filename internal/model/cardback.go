package model

type CardBack = string

const (
	CardBackDefault CardBack = "default"
	CardBackRed     CardBack = "red"
	CardBackBlue    CardBack = "blue"
	CardBackGreen   CardBack = "green"
	CardBackYellow  CardBack = "yellow"
	CardBackPink    CardBack = "pink"
	CardBackPurple  CardBack = "purple"
	CardBackMagic   CardBack = "magic"
)

var CardBacks = []CardBack{
	CardBackDefault,
	CardBackRed,
	CardBackBlue,
	CardBackGreen,
	CardBackYellow,
	CardBackPink,
	CardBackPurple,
	CardBackMagic,
}

func ValidCardBack(cb CardBack) bool {
	for _, known := range CardBacks {
		if cb == known {
			return true
		}
	}
	return false
}
