package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gitlab.com/aoterocom/AOOrderSync/bot"
	"gitlab.com/aoterocom/AOOrderSync/helpers"
)

func main() {
	app := &cli.App{
		Name:  "aoordersync",
		Usage: "keep exchange orders in sync and push updates to trading bots",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "conf.env", Usage: "env file loaded before reading the environment"},
		},
		Commands: bot.Commands(),
	}

	if err := app.Run(os.Args); err != nil {
		helpers.Logger.Errorln(err)
		os.Exit(1)
	}
}
