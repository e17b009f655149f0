package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/watch"
	"github.com/okian/pulse/pkg/logger"
)

const controlTimeout = 10 * time.Second

func main() {
	if err := logger.InitWithOptions(logger.Options{Output: os.Stderr}); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. The root command watches the stream; the
// producer subcommands drive the server's control API.
func newRootCommand() *cobra.Command {
	var (
		url      string
		category string
		interval time.Duration
		duration time.Duration
		tail     int
	)

	root := &cobra.Command{
		Use:          "pulse-watch",
		Short:        "Subscribe to a pulse event stream",
		Long:         "pulse-watch connects to a pulse server's websocket stream, buffers what it receives and prints periodic reports.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			wc := watch.FromConfig(cfg)
			if url != "" {
				wc.URL = url
			}
			if category != "" {
				c, err := model.ParseCategory(category)
				if err != nil {
					return err
				}
				wc.Category = c
			}
			wc.ReportInterval = interval
			wc.Duration = duration
			wc.Tail = tail
			wc.Output = cmd.OutOrStdout()

			_, err = watch.Run(cmd.Context(), wc)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	root.PersistentFlags().StringVar(&url, "url", "", "Stream URL (default from PULSE_CLIENT_URL)")
	root.Flags().StringVar(&category, "category", "", "Only report records of this category")
	root.Flags().DurationVar(&interval, "interval", 2*time.Second, "Report interval")
	root.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	root.Flags().IntVar(&tail, "tail", 0, "Print the newest N matching records with each report")

	root.AddCommand(newProducerCommand(&url))
	return root
}

func newProducerCommand(url *string) *cobra.Command {
	producerCmd := &cobra.Command{Use: "producer", Short: "Producer control"}

	producerCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start generating events",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withControl(cmd, *url, func(ctx context.Context, ctl *watch.Control) (any, error) {
					return ctl.Start(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop generating and flush pending events",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withControl(cmd, *url, func(ctx context.Context, ctl *watch.Control) (any, error) {
					return ctl.Stop(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "rate <events-per-second>",
			Short: "Change the generation rate",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rate, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid rate %q: %w", args[0], err)
				}
				return withControl(cmd, *url, func(ctx context.Context, ctl *watch.Control) (any, error) {
					return ctl.SetRate(ctx, rate)
				})
			},
		},
		&cobra.Command{
			Use:   "limiter",
			Short: "Show the server's admission limiter",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withControl(cmd, *url, func(ctx context.Context, ctl *watch.Control) (any, error) {
					return ctl.Limiter(ctx)
				})
			},
		},
	)
	return producerCmd
}

// withControl runs call against the server and prints its JSON result.
func withControl(cmd *cobra.Command, url string, call func(context.Context, *watch.Control) (any, error)) error {
	if url == "" {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		url = cfg.ClientURL
	}
	ctl, err := watch.NewControl(url, controlTimeout)
	if err != nil {
		return err
	}
	out, err := call(cmd.Context(), ctl)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitWithOptions(logger.Options{Format: cfg.LogFormat, Level: cfg.LogLevel, Output: os.Stderr}); err != nil {
		return nil, err
	}
	return cfg, nil
}
