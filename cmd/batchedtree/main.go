package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Run using
//  go run ./cmd/batchedtree --config tree.toml <command> <flags>

var (
	configFlag = cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "TOML configuration file, built in defaults if empty",
		EnvVars: []string{"BATCHEDTREE_CONFIG"},
	}
	acceptAllFlag = cli.BoolFlag{
		Name:  "insecure-accept-all",
		Usage: "accept every proof when no verifying keys are configured",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "batchedtree",
		Usage: "batched append-only merkle tree accounts",
		Flags: []cli.Flag{
			&configFlag,
			&acceptAllFlag,
		},
		Commands: []*cli.Command{
			&InitTreeCmd,
			&InitQueueCmd,
			&InsertCmd,
			&InsertNullifierCmd,
			&InsertAddressCmd,
			&UpdateInputCmd,
			&UpdateOutputCmd,
			&StatusCmd,
			&CheckpointCmd,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
