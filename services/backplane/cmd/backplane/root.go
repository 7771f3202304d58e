package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"backplane-go/services/backplane"
	"backplane-go/services/backplane/config"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/services/backplane/internal/platform"
	"backplane-go/types"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "backplane",
		Short: "Backplane orchestration kernel",
		Long: `Attach the modules listed in a setup document to a backplane, broker its
GPIO lines and shared peripherals, and drive the periodic scan.

Examples:
  backplane describe -c setup.yaml           # print table, pool and interfaces
  backplane run -c setup.yaml --ticks 100    # run 100 scan ticks on the sim board`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "backplane.yaml", "setup document")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn, error or critical")

	root.AddCommand(newRunCmd(opts), newDescribeCmd(opts))
	return root
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return logx.LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func (o *rootOptions) logger(w io.Writer) (*slog.Logger, error) {
	lvl, err := parseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl, ReplaceAttr: logx.ReplaceLevel})), nil
}

// open loads the setup, opens its platform and builds the backplane.
func (o *rootOptions) open(log *slog.Logger) (*types.Setup, *backplane.Backplane, error) {
	setup, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	board, err := platform.Open(setup.Platform, platform.PeriphConfig{
		I2CBus:  setup.Periph.I2CBus,
		SPIPort: setup.Periph.SPIPort,
		SPIHz:   setup.Periph.SPIHz,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open platform: %w", err)
	}
	bp, err := backplane.Build(setup, board, log)
	if err != nil {
		_ = board.Close()
		return nil, nil, fmt.Errorf("build backplane: %w", err)
	}
	for _, w := range bp.Warnings {
		log.Warn("backplane degraded", "err", w)
	}
	return setup, bp, nil
}
