package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"davi/internal/backend"
	"davi/internal/cli"
	"davi/internal/config"
	"davi/internal/log"
	"davi/internal/services"
)

// admin carries the state shared by every subcommand.
type admin struct {
	out     io.Writer
	cfg     *config.Config
	logger  *log.Logger
	factory backend.Factory
	backend backend.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &admin{out: out}

	root := &cobra.Command{
		Use:           "davi-admin",
		Short:         "Administer a davi installation",
		Long:          "Run migrations and inspect or modify ledger data without going through the HTTP API.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetOut(out)
	root.SetErr(os.Stderr)

	root.AddCommand(
		a.migrateCmd(),
		a.userCmd(),
		a.bucketCmd(),
		a.distributeCmd(),
		a.giantCmd(),
	)
	return root
}

func (a *admin) setup() error {
	cli.LoadEnvFile()
	a.cfg = config.Load()
	a.logger = cli.SetupLogger(os.Stderr, a.cfg.LogLevel, a.cfg.LogFormat, log.ComponentAdmin)
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return err
	}
	a.backend = bcfg
	a.factory = backend.NewFactory(a.logger)
	return nil
}

// withFinance opens the repository for the duration of fn. Ledger events are
// never published from here; the worker's catch-up mirrors what we write.
func (a *admin) withFinance(ctx context.Context, fn func(*services.Finance) error) error {
	bcfg := a.backend
	bcfg.AMQPURL = ""
	res, err := a.factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	opts := cli.FinanceOptions(a.cfg)
	opts.SeedDemoUser = false
	finance := services.New(res.Repository, nil, opts)
	defer func() {
		if err := finance.Close(); err != nil {
			a.logger.Warn("Close repository", log.FieldError, err.Error())
		}
	}()
	return fn(finance)
}

func (a *admin) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
