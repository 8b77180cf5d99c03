package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/glossd/unsealer/common"
	"github.com/glossd/unsealer/process"
	"github.com/glossd/unsealer/server"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		logrus.Errorf("command failed: %s", err)
		os.Exit(exitErr.ExitCode())
	}
	logrus.Error(err)
	os.Exit(1)
}

type runOptions struct {
	configPath       string
	bind             string
	serverPrivateKey string
	managerPublicKey string
	command          string
	envFile          string
	runs             int
}

func newRootCmd() *cobra.Command {
	var verbosity string
	opts := &runOptions{}
	runE := func(cmd *cobra.Command, _ []string) error {
		return runUnsealer(cmd, opts)
	}

	root := &cobra.Command{
		Use:   "unsealer",
		Short: "Wait for a sealed config over HTTP, then run a command with it as environment",
		Long: `The unsealer listens for POST /init with a config encrypted by the manager.
Once it decrypts one, it stops listening and runs the command with the config's
keys, upper-cased, as environment variables.`,
		Version:       common.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.SetupLogging(verbosity)
		},
		RunE: runE,
	}
	root.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", common.DefaultLogLevel, "log level (debug, info, warn, error)")
	addRunFlags(root.Flags(), opts)

	run := &cobra.Command{
		Use:   "run",
		Short: "Serve until unsealed, then run the command (the default)",
		Args:  cobra.NoArgs,
		RunE:  runE,
	}
	addRunFlags(run.Flags(), opts)

	root.AddCommand(run, newKeygenCmd(), newSealCmd(), newSendCmd(), newHealthCmd(), newVersionCmd())
	return root
}

func addRunFlags(f *pflag.FlagSet, opts *runOptions) {
	f.StringVar(&opts.configPath, "config", "", "path to the unsealer yaml config")
	f.StringVarP(&opts.bind, "bind", "b", common.DefaultBind, "address to listen on [$"+common.EnvBind+"]")
	f.StringVarP(&opts.serverPrivateKey, "server-private-key", "s", "", "base64url private key of this server [$"+common.EnvServerPrivateKey+"]")
	f.StringVarP(&opts.managerPublicKey, "manager-public-key", "m", "", "base64url public key of the manager [$"+common.EnvManagerPublicKey+"]")
	f.StringVarP(&opts.command, "command", "c", "", "shell command to run once unsealed [$"+common.EnvCommand+"]")
	f.StringVar(&opts.envFile, "env-file", "", ".env file merged into the command's environment [$"+common.EnvEnvFile+"]")
	f.IntVar(&opts.runs, "runs", common.DefaultRuns, "how many times to run the command, negative restarts it forever [$"+common.EnvRuns+"]")
}

// resolveConfig layers the config file, the environment and the flags that
// were set explicitly, in that order.
func resolveConfig(f *pflag.FlagSet, opts *runOptions, lookup func(string) (string, bool)) (common.Config, error) {
	cfg, err := common.LoadConfig(opts.configPath, lookup)
	if err != nil {
		return cfg, err
	}
	if f.Changed("bind") {
		cfg.Bind = opts.bind
	}
	if f.Changed("server-private-key") {
		cfg.ServerPrivateKey, err = common.ParseSecretKey(opts.serverPrivateKey)
		if err != nil {
			return cfg, errors.Wrap(err, "--server-private-key")
		}
	}
	if f.Changed("manager-public-key") {
		cfg.ManagerPublicKey, err = common.ParsePublicKey(opts.managerPublicKey)
		if err != nil {
			return cfg, errors.Wrap(err, "--manager-public-key")
		}
	}
	if f.Changed("command") {
		cfg.Command = opts.command
	}
	if f.Changed("env-file") {
		cfg.EnvFile = opts.envFile
	}
	if f.Changed("runs") {
		cfg.Runs = opts.runs
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

func runUnsealer(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := resolveConfig(cmd.Flags(), opts, os.LookupEnv)
	if err != nil {
		return err
	}

	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := server.New(cfg).Run(ctx)
	if errors.Is(err, server.ErrInterrupted) {
		logrus.Info("Unsealer exiting")
		return nil
	}
	if err != nil {
		return err
	}

	env, err := process.EnvFromConfig(config)
	if err != nil {
		return err
	}
	fileEnv, err := process.ReadEnvFile(cfg.EnvFile)
	if err != nil {
		return err
	}
	logrus.Infof("Running command with %d unsealed variables", len(env))

	runner := &process.Runner{
		Command:     cfg.Command,
		Env:         process.BuildEnv(os.Environ(), fileEnv, env),
		Runs:        cfg.Runs,
		StopTimeout: cfg.StopTimeout(),
	}
	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logrus.Info("Unsealer exiting")
		return nil
	}
	return err
}
