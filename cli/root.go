// Package cli is the videosignal command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speakwise/videosignal/config"
)

// flagKeys maps flags onto the config keys they override.
var flagKeys = map[string]string{
	"log-level":      "pipeline.log_level",
	"frame-interval": "media.frame_interval",
	"keep-work-dir":  "pipeline.keep_work_dir",
	"debug-dump":     "pipeline.debug_dump",
	"remote":         "remote.enabled",
}

type app struct {
	v         *viper.Viper
	cfgPath   string
	logFormat string
	cfg       *config.Root
}

// NewRootCmd builds the command tree. Configuration is loaded once, before
// any subcommand runs.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "videosignal",
		Short:         "Extract per-segment face and voice features from a talk video",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// only the running command's flags are bound; run and batch share names
			for name, key := range flagKeys {
				if fl := cmd.Flags().Lookup(name); fl != nil {
					if err := a.v.BindPFlag(key, fl); err != nil {
						return err
					}
				}
			}
			cfg, err := config.Load(a.cfgPath, a.v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			return setupLogging(cmd.ErrOrStderr(), cfg.Pipeline.LogLvl, a.logFormat)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default config/$CONFIG_ENV/config.yaml or config.yaml)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newRunCmd(a),
		newBatchCmd(a),
		newWorkerCmd(a),
		newSchemaCmd(),
	)
	return root
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		log.WithError(err).Error("videosignal failed")
	}
	return err
}

func setupLogging(w io.Writer, level, format string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetOutput(w)
	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// workerArgs carries the parent's logging setup over to spawned workers;
// everything else reaches them through the config file and environment.
func (a *app) workerArgs() []string {
	return []string{"--log-level", a.cfg.Pipeline.LogLvl, "--log-format", a.logFormat}
}
