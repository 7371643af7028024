package main

import (
	"log"

	"github.com/anoixa/image-relay/config"

	"github.com/anoixa/image-relay/cmd"
)

func main() {
	log.Printf("image relay %s (%s)", config.Version, config.CommitHash)
	cmd.Execute()
}
