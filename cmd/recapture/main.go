package main

import (
	"github.com/bryanchriswhite/recapture/cmd/recapture/commands"
)

func main() {
	commands.Execute()
}
