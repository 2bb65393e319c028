package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/handoff"
)

// mkRunDir creates a run directory owned by exactly one pipeline run. The
// uuid suffix keeps concurrent runs of the same video apart.
func mkRunDir(workRoot, videoID string) (string, error) {
	ts := time.Now().Format("20060102-150405")
	name := fmt.Sprintf("run_%s_%s_%s", safeName(videoID), ts, uuid.NewString()[:8])
	dir := filepath.Join(workRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func safeName(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	if len(b) > 48 {
		b = b[:48]
	}
	return string(b)
}

// writeJSON writes v indented, atomically.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return handoff.WriteFileAtomic(path, append(b, '\n'))
}

// dump writes an intermediate transcript for inspection. Failures are only
// logged; a debug artefact never fails a run.
func dump(dir, name string, v any) {
	if dir == "" {
		return
	}
	path := filepath.Join(dir, name)
	if err := writeJSON(path, v); err != nil {
		log.WithError(err).WithField("path", path).Warn("debug dump failed")
		return
	}
	log.WithField("path", path).Debug("debug dump written")
}

func cleanup(dir string, keep bool) {
	if keep {
		log.WithField("run_dir", dir).Info("keeping run directory")
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.WithError(err).WithField("run_dir", dir).Warn("run directory cleanup failed")
	}
}
