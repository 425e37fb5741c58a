package main

import (
	"os"

	"github.com/rangesecurity/chainsync/cli"
	"github.com/rs/zerolog/log"
)

func main() {
	cmd := cli.RootCmd()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("cmd failed")
		os.Exit(1)
	}
}
