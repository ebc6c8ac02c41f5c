// Package controller implements the commands of the pollchain CLI. Every
// command opens the ledger database, runs against it and closes it, except
// for the serve and index commands that keep running until interrupted.
package controller

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.dedis.ch/pollchain/cli"
	"go.dedis.ch/pollchain/core/execution"
)

const (
	defaultDB       = "pollchain.db"
	defaultKey      = "pollchain.key"
	defaultIndexDB  = "pollchain-index.db"
	defaultListen   = "127.0.0.1:8080"
	defaultDuration = 24 * time.Hour
)

// Context is the context available to an action when it is invoked.
type Context struct {
	// Ctx is done when the process is interrupted.
	Ctx   context.Context
	Flags cli.Flags
	Out   io.Writer
	Clock execution.Clock
}

// actionTemplate is the implementation of a command.
type actionTemplate interface {
	Execute(Context) error
}

// Controller populates a CLI builder with the commands of the voting program.
type Controller struct {
	out   io.Writer
	clock execution.Clock
}

// Option is the type of options to create a controller.
type Option func(*Controller)

// WithClock sets the clock of the ledger opened by the commands.
func WithClock(clock execution.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// NewController returns a controller that prints the results of the commands
// to the writer.
func NewController(out io.Writer, opts ...Option) Controller {
	c := Controller{
		out:   out,
		clock: execution.WallClock{},
	}

	for _, opt := range opts {
		opt(&c)
	}

	return c
}

// GlobalFlags returns the flags shared by every command. They must be given
// before the name of the command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		cli.PathFlag{
			Name:    "db",
			Usage:   "path to the ledger database",
			EnvVars: []string{"POLLCHAIN_DB"},
			Value:   defaultDB,
		},
		cli.PathFlag{
			Name:    "key",
			Usage:   "path to the private key of the identity",
			EnvVars: []string{"POLLCHAIN_KEY"},
			Value:   defaultKey,
		},
	}
}

// SetCommands populates the builder with the commands.
func (c Controller) SetCommands(builder cli.Builder) {
	keys := builder.SetCommand("keys")
	keys.SetDescription("manage the identity")

	sub := keys.SetSubCommand("new")
	sub.SetDescription("create the private key if it does not exist and print its address")
	sub.SetAction(c.makeAction(newKeyAction{}))

	sub = keys.SetSubCommand("show")
	sub.SetDescription("print the address of the identity")
	sub.SetAction(c.makeAction(showKeyAction{}))

	lgr := builder.SetCommand("ledger")
	lgr.SetDescription("manage the ledger")

	sub = lgr.SetSubCommand("init")
	sub.SetDescription("credit the balances of a genesis file")
	sub.SetFlags(cli.PathFlag{
		Name:     "genesis",
		Usage:    "path to the YAML genesis file",
		EnvVars:  []string{"POLLCHAIN_GENESIS"},
		Required: true,
	})
	sub.SetAction(c.makeAction(initAction{}))

	sub = lgr.SetSubCommand("airdrop")
	sub.SetDescription("credit lamports to an address")
	sub.SetFlags(
		cli.StringFlag{
			Name:  "to",
			Usage: "address to credit, the identity by default",
		},
		cli.Uint64Flag{
			Name:     "lamports",
			Usage:    "amount to credit",
			Required: true,
		},
	)
	sub.SetAction(c.makeAction(airdropAction{}))

	sub = lgr.SetSubCommand("balance")
	sub.SetDescription("print the balance of an address")
	sub.SetFlags(cli.StringFlag{
		Name:  "address",
		Usage: "address to read, the identity by default",
	})
	sub.SetAction(c.makeAction(balanceAction{}))

	poll := builder.SetCommand("poll")
	poll.SetDescription("create and vote on polls")

	sub = poll.SetSubCommand("create")
	sub.SetDescription("create a poll owned by the identity")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "name",
			Usage:    "name of the poll",
			Required: true,
		},
		cli.StringFlag{
			Name:  "description",
			Usage: "description of the poll",
		},
		cli.Uint64Flag{
			Name:  "start",
			Usage: "unix time of the opening of the vote, now by default",
		},
		cli.Uint64Flag{
			Name:  "end",
			Usage: "unix time of the closing of the vote, start+duration by default",
		},
		cli.DurationFlag{
			Name:  "duration",
			Usage: "length of the vote when no end is given",
			Value: defaultDuration,
		},
	)
	sub.SetAction(c.makeAction(createPollAction{}))

	sub = poll.SetSubCommand("add-candidate")
	sub.SetDescription("register a candidate to a poll owned by the identity")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "poll",
			Usage:    "address of the poll",
			EnvVars:  []string{"POLLCHAIN_POLL"},
			Required: true,
		},
		cli.StringFlag{
			Name:     "name",
			Usage:    "name of the candidate",
			Required: true,
		},
	)
	sub.SetAction(c.makeAction(addCandidateAction{}))

	sub = poll.SetSubCommand("vote")
	sub.SetDescription("vote for a candidate of a poll")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "poll",
			Usage:    "address of the poll",
			EnvVars:  []string{"POLLCHAIN_POLL"},
			Required: true,
		},
		cli.StringFlag{
			Name:     "candidate",
			Usage:    "address of the candidate",
			Required: true,
		},
	)
	sub.SetAction(c.makeAction(voteAction{}))

	sub = poll.SetSubCommand("show")
	sub.SetDescription("print a poll and its candidates")
	sub.SetFlags(cli.StringFlag{
		Name:     "poll",
		Usage:    "address of the poll",
		EnvVars:  []string{"POLLCHAIN_POLL"},
		Required: true,
	})
	sub.SetAction(c.makeAction(showPollAction{}))

	sub = poll.SetSubCommand("verify")
	sub.SetDescription("check that a voter has voted on a poll")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "poll",
			Usage:    "address of the poll",
			EnvVars:  []string{"POLLCHAIN_POLL"},
			Required: true,
		},
		cli.StringFlag{
			Name:  "voter",
			Usage: "address of the voter, the identity by default",
		},
	)
	sub.SetAction(c.makeAction(verifyAction{}))

	index := builder.SetCommand("index")
	index.SetDescription("copy the records of the ledger into the index database")
	index.SetFlags(
		cli.PathFlag{
			Name:    "index-db",
			Usage:   "path to the SQLite index database",
			EnvVars: []string{"POLLCHAIN_INDEX_DB"},
			Value:   defaultIndexDB,
		},
		cli.BoolFlag{
			Name:  "follow",
			Usage: "keep following the ledger until interrupted",
		},
	)
	index.SetAction(c.makeAction(indexAction{}))

	serve := builder.SetCommand("serve")
	serve.SetDescription("serve the records and the metrics over HTTP")
	serve.SetFlags(
		cli.StringFlag{
			Name:    "listen",
			Usage:   "address of the HTTP server",
			EnvVars: []string{"POLLCHAIN_LISTEN"},
			Value:   defaultListen,
		},
		cli.PathFlag{
			Name:    "index-db",
			Usage:   "path to the SQLite index database, the index is disabled when empty",
			EnvVars: []string{"POLLCHAIN_INDEX_DB"},
		},
	)
	serve.SetAction(c.makeAction(serveAction{}))
}

// makeAction creates a CLI action from the template. The context of the action
// is done when the process receives an interruption.
func (c Controller) makeAction(tmpl actionTemplate) cli.Action {
	return func(flags cli.Flags) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return tmpl.Execute(Context{
			Ctx:   ctx,
			Flags: flags,
			Out:   c.out,
			Clock: c.clock,
		})
	}
}
