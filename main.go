package main

import (
	"os"

	"github.com/speakwise/videosignal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
