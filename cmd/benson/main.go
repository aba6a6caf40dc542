// Command benson runs PAC documents through the admission pipeline and
// manages the execution audit chain.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/benson/pkg/config"
)

// Exit codes:
//
//	0 = success (every PAC admitted, chain verified)
//	1 = a PAC was rejected or a check failed
//	2 = runtime error
const (
	exitOK       = 0
	exitRejected = 1
	exitRuntime  = 2
)

// errCheckFailed signals exit code 1 after the command already reported why.
var errCheckFailed = errors.New("check failed")

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// app is shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.newRootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errCheckFailed):
		return exitRejected
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitRuntime
	}
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "benson",
		Short: "PAC ingress validation and execution admission",
		Long: `Benson validates Policy-Aligned Contracts through schema, lint and the
preflight gate chain, and records every decision in a hash-linked audit chain.

Example:
  benson admit pac.yaml
  benson verify-chain --config benson.json`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to configuration file (JSON)")

	root.AddCommand(
		a.newAdmitCmd(),
		a.newLintCmd(),
		a.newSchemaCmd(),
		a.newVerifyChainCmd(),
		a.newExportCmd(),
		a.newCloseLoopCmd(),
	)
	return root
}

func (a *app) loadConfig(*cobra.Command, []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Log.Logger(a.stderr)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.stdout, format, args...)
}
