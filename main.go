package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli"

	"github.com/cipherrelay/cipherrelay/server"
)

const usage = "usage: cipherrelay ip port"

func main() {
	app := cli.NewApp()
	app.Name = "cipherrelay"
	app.Usage = "Vigenère encryption relay server"
	app.ArgsUsage = "ip port"
	app.Version = server.Version
	app.Flags = getFlags()
	app.Action = func(c *cli.Context) error {
		config, err := configFromContext(c)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		server := server.New(config)
		if err := server.Start(); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := server.Wait(); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load configuration from `FILE`",
		},
		cli.StringFlag{
			Name:  "level, l",
			Usage: "logging level [debug|info|warn|error]",
		},
		cli.IntFlag{
			Name:  "backlog",
			Usage: "listen backlog (default: from config or 10)",
		},
	}
}

// configFromContext loads the configuration file, if any, and applies the
// positional address and flags on top of it.
func configFromContext(c *cli.Context) (*server.Config, error) {
	host, port, err := parseArgs(c.Args())
	if err != nil {
		return nil, err
	}
	config, err := server.NewConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	config.Host = host
	config.Port = port
	if level := c.String("level"); level != "" {
		l, err := server.GetLogLevel(level)
		if err != nil {
			return nil, err
		}
		config.LogLevel = l
	}
	if c.IsSet("backlog") {
		backlog := c.Int("backlog")
		if backlog <= 0 {
			return nil, fmt.Errorf("Invalid backlog %d", backlog)
		}
		config.Backlog = backlog
	}
	return config, nil
}

// parseArgs validates the ip and port positional arguments. The ip is only
// checked for presence here; its family is decided when the server binds.
func parseArgs(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf(usage)
	}
	port, err := strconv.Atoi(args[1])
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("Invalid port %q\n%s", args[1], usage)
	}
	return args[0], port, nil
}
