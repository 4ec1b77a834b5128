package main

import (
	"context"
	"flag"
	"os"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/deploy"
)

func runDeploy(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	outputJSON := fs.Bool("output-json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("deploy takes exactly one program binary")
	}

	binary, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return errors.Wrap(err, "failed to read program binary")
	}

	deployer := deploy.New(env.client, env.pipeline, deploy.WithEnvConfigs())
	program, err := deployer.Deploy(ctx, binary, env.payer)
	if err != nil {
		return err
	}

	programID := base58.Encode(program)
	if *outputJSON {
		return printJSON(os.Stdout, map[string]interface{}{"program_id": programID})
	}
	return printLines(os.Stdout, "Program ID: "+programID)
}
