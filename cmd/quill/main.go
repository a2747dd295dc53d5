package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	serverFlag := &cli.StringFlag{
		Name:    "url",
		Usage:   "Quill server URL (defaults to the saved one)",
		EnvVars: []string{"QUILL_URL"},
	}
	return &cli.App{
		Name:           "quill",
		Usage:          "Blogging API server and command-line client",
		Version:        version,
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server"},
				Usage:   "Start the Quill API server (configured from QUILL_* environment variables)",
				Action:  func(c *cli.Context) error { return runServer(c.Context) },
			},
			{
				Name:  "register",
				Usage: "Create an account and save its token",
				Flags: []cli.Flag{
					serverFlag,
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"QUILL_PASSWORD"}},
				},
				Action: cmdRegister,
			},
			{
				Name:    "login",
				Aliases: []string{"auth"},
				Usage:   "Log in and save the token",
				Flags: []cli.Flag{
					serverFlag,
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"QUILL_PASSWORD"}},
				},
				Action: cmdLogin,
			},
			{
				Name:  "post",
				Usage: "Publish a post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "content", Required: true},
					&cli.StringSliceFlag{Name: "tags", Usage: "comma separated tags"},
				},
				Action: cmdPost,
			},
			{
				Name:  "comment",
				Usage: "Comment on a post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "post", Required: true},
					&cli.StringFlag{Name: "text", Required: true},
				},
				Action: cmdComment,
			},
			{
				Name:  "like",
				Usage: "Toggle your like on a post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "post", Required: true},
				},
				Action: cmdLike,
			},
			{
				Name:    "read",
				Aliases: []string{"list"},
				Usage:   "List posts, or show one post with its comments",
				Flags: []cli.Flag{
					serverFlag,
					&cli.StringFlag{Name: "post"},
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "limit", Value: 10},
					&cli.BoolFlag{Name: "json", Usage: "print raw JSON"},
				},
				Action: cmdRead,
			},
			{
				Name:    "whoami",
				Aliases: []string{"status"},
				Usage:   "Show the saved account and token status",
				Action:  cmdWhoami,
			},
		},
	}
}
