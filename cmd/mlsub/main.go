package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mlsub/internal/app"
	"mlsub/internal/config"
	logx "mlsub/pkg/logx"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type session struct {
	app  *app.App
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger
}

func (r *session) close() {
	if r.logs != nil {
		_ = r.logs.Close()
	}
}

// setup loads .env, the config file and the flag overrides, then builds the
// logger and the App.
func setup(cmd *cobra.Command, f *runFlags) (*session, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfgm := config.NewManager(f.configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	fs := cmd.Flags()
	f.apply(fs, cfg)

	logs, log := logx.NewService(app.LoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a, err := app.New(cfg, log,
		app.WithLogService(logs),
		app.WithOverrides(func(c *config.Config) { f.apply(fs, c) }),
	)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	return &session{app: a, cfgm: cfgm, logs: logs, log: log}, nil
}

func newRootCmd() *cobra.Command {
	f := &runFlags{}
	root := &cobra.Command{
		Use:           "mlsub",
		Short:         "Fetch ML/DL papers and tech news, store them and push notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f.register(root.PersistentFlags())

	var noNotify bool
	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch articles, store them and notify the selected channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer rt.close()
			_, err = rt.app.Fetch(cmd.Context(), app.FetchOptions{SkipNotify: noNotify})
			return err
		},
	}
	fetch.Flags().BoolVar(&noNotify, "no-notify", false, "store articles without sending notifications")

	notify := &cobra.Command{
		Use:   "notify",
		Short: "Send notifications for the stored articles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer rt.close()
			_, err = rt.app.Notify(cmd.Context())
			if errors.Is(err, app.ErrNoArticles) {
				return nil
			}
			return err
		},
	}

	visualize := &cobra.Command{
		Use:   "visualize",
		Short: "Render the stored articles as an HTML page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer rt.close()
			_, err = rt.app.Visualize(cmd.Context())
			if errors.Is(err, app.ErrNoArticles) {
				return nil
			}
			return err
		},
	}

	daemon := &cobra.Command{
		Use:   "daemon",
		Short: "Run fetch on the configured schedule and reload the config on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer rt.close()
			return rt.app.Daemon(cmd.Context(), rt.cfgm)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mlsub", version)
		},
	}

	root.AddCommand(fetch, notify, visualize, daemon, versionCmd)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		cancel()
		os.Exit(1)
	}
}
