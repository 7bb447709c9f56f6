package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carun/fdicomm-go/pkg/config"
	"github.com/carun/fdicomm-go/pkg/fdi"
)

// Version is set at build time via -ldflags
var Version = "dev"

var errInterrupted = errors.New("interrupted")

// options holds the command line flags
type options struct {
	configPath     string
	url            string
	verbose        string
	timeout        time.Duration
	requestTimeout time.Duration
	securityPolicy string
	securityMode   string
	user           string
	password       string
	slot           uint16
	subslot        uint16
	index          uint16
	api            uint32
	callRate       float64
	decodeIM0      bool
}

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	return newCommand(stdout, stderr, func(ctx context.Context, cfg *config.Config) {
		logger := newLogger(stderr, cfg.Verbose)
		runWithSignals(ctx, cfg, stdout, logger)
	})
}

// newCommand builds the command line. runFn receives the validated configuration.
func newCommand(stdout, stderr io.Writer, runFn func(ctx context.Context, cfg *config.Config)) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "fdicomm",
		Short: "Read PROFINET device diagnostics through an FDI communication server",
		Long: `Connects to an FDI communication server over OPC-UA, initializes it,
scans the PROFINET network and, for every device found, connects,
reads one record (I&M0 by default) and disconnects.`,
		Example: `  fdicomm -u opc.tcp://192.168.0.10:4840
  fdicomm -u opc.tcp://smartlink:4840 -v INFO --im0`,
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}

			runFn(cmd.Context(), cfg)
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	f.StringVarP(&opts.url, "url", "u", "", "Endpoint URL of the FDI communication server")
	f.StringVarP(&opts.verbose, "verbose", "v", "", "Log level (ERROR, WARNING, INFO, DEBUG)")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Connection timeout")
	f.DurationVar(&opts.requestTimeout, "request-timeout", 10*time.Second, "Timeout of a single remote call")
	f.StringVar(&opts.securityPolicy, "security-policy", "None", "Security policy (None, Basic256Sha256, ...)")
	f.StringVar(&opts.securityMode, "security-mode", "None", "Security mode (None, Sign, SignAndEncrypt)")
	f.StringVar(&opts.user, "user", "", "User name (anonymous if empty)")
	f.StringVar(&opts.password, "password", "", "Password for --user")
	f.Uint16Var(&opts.slot, "slot", fdi.IM0Slot, "Slot of the record to read")
	f.Uint16Var(&opts.subslot, "subslot", fdi.IM0Subslot, "Subslot of the record to read")
	f.Uint16Var(&opts.index, "index", fdi.IM0Index, "Index of the record to read")
	f.Uint32Var(&opts.api, "api", fdi.IM0API, "API of the record to read")
	f.Float64Var(&opts.callRate, "call-rate", 0, "Maximum remote calls per second (0 = unlimited)")
	f.BoolVar(&opts.decodeIM0, "im0", false, "Decode and print the I&M0 record after the raw dump")

	return cmd
}

// buildConfig loads the config file, if any, and applies explicitly set flags on top.
func buildConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f := cmd.Flags()
	// Flags without a config file always apply
	set := func(name string) bool {
		return opts.configPath == "" || f.Changed(name)
	}

	if set("url") {
		cfg.Endpoint = opts.url
	}
	if set("verbose") {
		cfg.Verbose = opts.verbose
	}
	if set("timeout") {
		cfg.Timeout = opts.timeout
	}
	if set("request-timeout") {
		cfg.RequestTimeout = opts.requestTimeout
	}
	if set("security-policy") {
		cfg.Security.Policy = opts.securityPolicy
	}
	if set("security-mode") {
		cfg.Security.Mode = opts.securityMode
	}
	if set("user") {
		cfg.Auth.Username = opts.user
	}
	if set("password") {
		cfg.Auth.Password = opts.password
	}
	if set("slot") {
		cfg.Transfer.Slot = opts.slot
	}
	if set("subslot") {
		cfg.Transfer.Subslot = opts.subslot
	}
	if set("index") {
		cfg.Transfer.Index = opts.index
	}
	if set("api") {
		cfg.Transfer.API = opts.api
	}
	if set("call-rate") {
		cfg.CallRate = opts.callRate
	}
	if set("im0") {
		cfg.DecodeIM0 = opts.decodeIM0
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("required flag \"url\" not set")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger configures a logger. An empty verbosity keeps the default level, WARNING.
func newLogger(w io.Writer, verbosity string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.WarnLevel)
	if level, ok := config.ParseVerbosity(verbosity); ok {
		logger.SetLevel(level)
	}
	return logger
}

// runWithSignals performs one run and cancels it on SIGINT or SIGTERM.
func runWithSignals(parent context.Context, cfg *config.Config, out io.Writer, logger *logrus.Logger) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		run(gctx, fdi.SessionDialer(cfg.SessionOptions()), cfg.RunConfig(), out, logger)
		return nil
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Warnf("Received %s, stopping", sig)
			return errInterrupted
		case <-gctx.Done():
			return nil
		}
	})
	_ = g.Wait()
}

// run executes one session. All failures are logged, none are returned.
func run(ctx context.Context, dial fdi.Dialer, runCfg fdi.RunConfig, out io.Writer, logger *logrus.Logger) {
	runner := fdi.NewRunner(runCfg, out, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Exception: %v", r)
		}
	}()

	err := fdi.Execute(ctx, dial, runner.Run)
	switch {
	case err == nil:
	case fdi.IsTransportError(err):
		logger.Errorf("Can't connect to FDI communication server %v", err)
	default:
		logger.Errorf("Exception: %v", err)
	}
}
