package main

import (
	"github.com/deckset/planningpoker/core/internal/app"
	"github.com/deckset/planningpoker/core/internal/config"
)

func main() {
	app.Go(config.Load())
}
