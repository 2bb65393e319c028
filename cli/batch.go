package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/speakwise/videosignal/orchestrator"
)

func newBatchCmd(a *app) *cobra.Command {
	var outDir string
	var parallel int
	cmd := &cobra.Command{
		Use:   "batch VIDEO...",
		Short: "Process several videos as independent runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			refs := batchRefs(args)
			errs := make([]error, len(refs))

			// a failed video does not stop the others, so no shared cancellation
			var g errgroup.Group
			g.SetLimit(max(parallel, 1))
			for i, ref := range refs {
				g.Go(func() error {
					out := filepath.Join(outDir, ref.ID+"_final_transcript.json")
					if _, err := p.Run(cmd.Context(), ref, out); err != nil {
						errs[i] = fmt.Errorf("%s: %w", ref.Source, err)
					}
					return nil
				})
			}
			_ = g.Wait()

			failed := 0
			for _, err := range errs {
				if err != nil {
					failed++
				}
			}
			log.WithFields(log.Fields{"videos": len(refs), "failed": failed}).Info("batch done")
			return errors.Join(errs...)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&outDir, "out-dir", "o", ".", "directory for result files")
	f.IntVarP(&parallel, "parallel", "p", 2, "videos processed at the same time")
	addRunFlags(cmd)
	return cmd
}

// batchRefs gives every source a distinct id so output files never collide.
func batchRefs(sources []string) []orchestrator.VideoRef {
	seen := map[string]int{}
	refs := make([]orchestrator.VideoRef, 0, len(sources))
	for _, src := range sources {
		id := videoID(src)
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}
		refs = append(refs, orchestrator.VideoRef{ID: id, Source: src})
	}
	return refs
}
