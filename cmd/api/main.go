package main

import (
	"os"

	"github.com/urfave/cli"
	"go.dedis.ch/onet/v3/log"
)

var cmds = cli.Commands{
	{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "run the poll API server",
		Action:  serve,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config, c",
				Usage: "TOML configuration file",
			},
			cli.StringFlag{
				Name:  "listen, l",
				Usage: "address to listen on, overrides the config",
			},
			cli.StringFlag{
				Name:  "backend, b",
				Usage: "storage backend: memory, json or bolt",
			},
			cli.StringFlag{
				Name:  "data",
				Usage: "data directory, overrides the config",
			},
		},
	},
	{
		Name:   "keygen",
		Usage:  "create a keypair for signing requests and reading results",
		Action: keygen,
	},
	{
		Name:      "encrypt",
		Usage:     "encrypt an option index under the network key",
		ArgsUsage: "option",
		Action:    encrypt,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "network-key, k",
				Usage: "network public key, as served by /api/network-key",
			},
			cli.IntFlag{
				Name:  "width, w",
				Value: 8,
				Usage: "ballot width in bits",
			},
		},
	},
	{
		Name:      "decrypt",
		Usage:     "open a value sealed to your key",
		ArgsUsage: "sealed-hex",
		Action:    decrypt,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "key, k",
				Usage: "private key hex from keygen",
			},
		},
	},
}

var cliApp = cli.NewApp()

func init() {
	cliApp.Name = "revote"
	cliApp.Usage = "Confidential polls with homomorphic tallies"
	cliApp.Version = "0.1"
	cliApp.Commands = cmds
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
	}
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
}

func main() {
	err := cliApp.Run(os.Args)
	if err != nil {
		log.Fatalf("Error while running app: %+v", err)
	}
}
