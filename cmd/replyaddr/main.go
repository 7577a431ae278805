package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/busybox42/replyaddr/internal/config"
	"github.com/busybox42/replyaddr/internal/logging"
	"github.com/busybox42/replyaddr/internal/metrics"
	"github.com/busybox42/replyaddr/internal/rewrite"
	"github.com/busybox42/replyaddr/pkg/replyaddr"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errUnknownAddress makes decode commands exit non-zero
var errUnknownAddress = errors.New("unknown address")

// cli holds the global flags shared by every subcommand
type cli struct {
	configPath string
	secret     string
}

// app is what the codec commands need, built from the configuration
type app struct {
	cfg      *config.Config
	service  *rewrite.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "replyaddr",
		Short: "Reply and bounce address codec",
		Long: `replyaddr mints and resolves signed reply and bounce addresses.
A reply address encodes the original sender and local recipient of a message
in its local-part; a bounce address carries a numeric id and expires.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&c.secret, "secret", "", "codec secret (overrides config and "+config.SecretEnv+")")

	rootCmd.AddCommand(c.newEncodeCmd())
	rootCmd.AddCommand(c.newDecodeCmd())
	rootCmd.AddCommand(c.newBounceCmd())
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "replyaddr %s\n", cmd.Root().Version)
		},
	}
}

// loadConfig loads and validates the configuration, printing warnings
func (c *cli) loadConfig(stderr io.Writer) (*config.Config, error) {
	cfg, result, err := config.LoadConfig(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(stderr, "WARNING: %s\n", w.Error())
	}
	return cfg, nil
}

// newRuntime wires the codec, metrics and rewrite service. logger may be nil
// to log warnings to stderr.
func (c *cli) newRuntime(cmd *cobra.Command, logger *slog.Logger) (*app, error) {
	cfg, err := c.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	secret := c.secret
	if secret == "" {
		if secret, err = cfg.Secret(); err != nil {
			return nil, fmt.Errorf("%w: use --secret, %s or the [codec] section", err, config.SecretEnv)
		}
	}

	if logger == nil {
		logger = logging.New(logging.Config{Level: "warn", Format: "text"}, cmd.ErrOrStderr())
	}

	codec, err := replyaddr.NewCodec(cfg.CodecConfig())
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svc, err := rewrite.New(rewrite.ServiceConfig{
		Secret:       secret,
		ReplyDomain:  cfg.Domains.ReplyDomain,
		BounceDomain: cfg.Domains.BounceDomain,
	}, codec, logger, m)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		service:  svc,
		logger:   logger,
		metrics:  m,
		registry: reg,
	}, nil
}
