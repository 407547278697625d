// Package main is the depth2metric command itself.
package main

import (
	"log"
	"os"

	"go.viam.com/depth2metric/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
