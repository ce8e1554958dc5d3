package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gitlab.com/aoterocom/autotrader/bot"
	"gitlab.com/aoterocom/autotrader/helpers"
)

func main() {
	app := &cli.App{
		Name:     "autotrader",
		Usage:    "run trading strategies live or against history",
		Commands: bot.Commands(),
	}

	if err := app.Run(os.Args); err != nil {
		helpers.Logger.Fatalln(err)
	}
}
