// Command ftledger operates a fungible token ledger kept in a local store.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "ftledger"
	app.Usage = "fungible token ledger"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the YAML configuration file",
		},
	}
	app.Commands = []cli.Command{
		initCommand,
		fundCommand,
		depositCommand,
		withdrawCommand,
		unregisterCommand,
		transferCommand,
		transferCallCommand,
		balanceCommand,
		supplyCommand,
		boundsCommand,
		storageBalanceCommand,
		setVaultCommand,
		metadataCommand,
		pendingCommand,
		processCommand,
		recoverCommand,
		dumpCommand,
		restoreCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	return app
}
