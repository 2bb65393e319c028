package cli

import (
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/speakwise/videosignal/config"
	"github.com/speakwise/videosignal/orchestrator"
)

func newRunCmd(a *app) *cobra.Command {
	var id, out string
	cmd := &cobra.Command{
		Use:   "run VIDEO",
		Short: "Process one video (local path, http(s) URL or s3://bucket/key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := orchestrator.VideoRef{ID: id, Source: args[0]}
			if ref.ID == "" {
				ref.ID = videoID(ref.Source)
			}
			if out == "" {
				out = ref.ID + "_final_transcript.json"
			}
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			final, err := p.Run(cmd.Context(), ref, out)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"out": out, "segments": len(final.Segments)}).Info("result written")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&id, "id", "", "video id used in logs and file names (default: file name)")
	f.StringVarP(&out, "out", "o", "", "output path (default <id>_final_transcript.json)")
	addRunFlags(cmd)
	return cmd
}

// addRunFlags adds the per-run knobs shared by run and batch. They are bound
// to config keys in flagKeys.
func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("frame-interval", 0, "sample every Nth frame")
	f.Bool("keep-work-dir", false, "keep the run directory after the run")
	f.Bool("debug-dump", false, "write intermediate transcripts next to the output")
	f.Bool("remote", false, "delegate frame processing to the remote executor")
}

func (a *app) pipeline() (*orchestrator.Pipeline, error) {
	sp, err := orchestrator.NewSpawner(a.cfgPath, config.DurSeconds(a.cfg.Pipeline.WorkerTimeout))
	if err != nil {
		return nil, err
	}
	sp.Args = a.workerArgs()
	return orchestrator.NewPipeline(a.cfg, sp), nil
}

// videoID derives an id from the last path element without its extension.
func videoID(src string) string {
	base := src
	if i := strings.IndexAny(base, "?#"); i >= 0 && strings.Contains(src, "://") {
		base = base[:i]
	}
	base = filepath.Base(base)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return "video"
	}
	return base
}
