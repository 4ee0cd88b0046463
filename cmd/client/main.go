package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli"

	"github.com/cipherrelay/cipherrelay/client"
	"github.com/cipherrelay/cipherrelay/server"
	"github.com/cipherrelay/cipherrelay/server/logger"
)

const usage = "usage: client ip port key message"

func main() {
	app := cli.NewApp()
	app.Name = "client"
	app.Usage = "Encrypt a message through a cipherrelay server and verify it"
	app.ArgsUsage = "ip port key message"
	app.Version = server.Version
	app.Flags = getFlags()
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "level, l",
			Usage: "logging level [debug|info|warn|error]",
			Value: "warn",
		},
		cli.DurationFlag{
			Name:  "timeout, t",
			Usage: "give up on the request after `DURATION`",
			Value: client.DefaultConfig("", 0).Timeout,
		},
	}
}

// run performs one verified round trip and prints both messages. Every
// failure is returned as a cli.ExitCoder with exit code 1.
func run(c *cli.Context) error {
	if c.NArg() != 4 {
		return cli.NewExitError(usage, 1)
	}
	args := c.Args()
	port, err := strconv.Atoi(args[1])
	if err != nil || port < 0 || port > 65535 {
		return cli.NewExitError(fmt.Sprintf("Invalid port %q\n%s", args[1], usage), 1)
	}
	level, err := server.GetLogLevel(c.String("level"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	config := client.DefaultConfig(args[0], port)
	config.Timeout = c.Duration("timeout")
	relay, err := client.New(config, logger.NewLogger(level))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	result, err := relay.RoundTrip(context.Background(), args[2], args[3])
	if result != nil {
		fmt.Fprintf(c.App.Writer, "Encrypted Message: %s\n", result.Ciphertext)
		fmt.Fprintf(c.App.Writer, "Decrypted Message: %s\n", result.Plaintext)
	}
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}
