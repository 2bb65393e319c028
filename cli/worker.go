package cli

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/speakwise/videosignal/orchestrator"
)

// newWorkerCmd is the entry point of a stage worker process. It is spawned
// by the orchestrator and not meant to be run by hand.
func newWorkerCmd(a *app) *cobra.Command {
	var stage, in, out string
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one pipeline stage in this process",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := orchestrator.ParseStage(stage)
			if err != nil {
				return err
			}
			fn, err := orchestrator.NewWorker(a.cfg).Func(st)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"stage": st, "pid": os.Getpid()}).Debug("worker up")
			return orchestrator.ServeStage(cmd.Context(), fn, in, out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&stage, "stage", "", "stage to run: text, frames or voice")
	f.StringVar(&in, "in", "", "stage input envelope")
	f.StringVar(&out, "out", "", "stage output envelope")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
