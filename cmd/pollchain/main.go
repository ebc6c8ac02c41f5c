// Package main implements the pollchain CLI, a single-process ledger that runs
// the voting program.
//
//  pollchain keys new
//  pollchain ledger airdrop --lamports 1000000000
//  pollchain poll create --name Lunch --duration 1h
//  pollchain poll add-candidate --poll XX --name Alice
//  pollchain poll vote --poll XX --candidate XX
//  pollchain poll show --poll XX
//  pollchain serve --listen :8080 --index-db index.db
//
// The global flags can be set with environment variables, which are also read
// from a .env file in the working directory.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.dedis.ch/pollchain/cli/urfave"
	"go.dedis.ch/pollchain/contracts/voting/controller"
	"golang.org/x/xerrors"
)

const envFile = ".env"

func main() {
	err := run(os.Args, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	err := loadEnv(envFile)
	if err != nil {
		return err
	}

	builder := urfave.NewBuilder("pollchain", nil, controller.GlobalFlags()...)
	builder.(*urfave.Builder).SetUsage("create polls and vote on a ledger")

	controller.NewController(out).SetCommands(builder)

	return builder.Build().Run(args)
}

// loadEnv reads the environment file if it exists. Variables already set in
// the environment take precedence.
func loadEnv(path string) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}

	err = godotenv.Load(path)
	if err != nil {
		return xerrors.Errorf("failed to load %s: %v", path, err)
	}

	return nil
}
