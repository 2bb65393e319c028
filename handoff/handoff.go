// Package handoff is the file contract between a stage worker and the
// orchestrator. A worker writes exactly one envelope; the orchestrator reads
// it once after the worker exits.
package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/normalize"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrMissingPayload means the worker exited without leaving an envelope.
var ErrMissingPayload = errors.New("handoff payload missing")

type Envelope struct {
	Status  string          `json:"status"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Failure is returned by Read when the worker reported an error.
type Failure struct {
	Message string
}

func (f *Failure) Error() string { return f.Message }

// Portable replaces NaN and ±Inf leaves of v with 0 so the value can cross a
// process or network boundary as JSON. v must be a pointer, map or slice for
// the change to be visible. It returns the number of replaced leaves.
func Portable(v any) int {
	return normalize.Apply(v, func(x float64) float64 {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	})
}

// Write stores payload as a successful envelope at path.
func Write(path string, payload any) error {
	if n := Portable(payload); n > 0 {
		log.WithField("path", path).Debugf("handoff: replaced %d non-finite values", n)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("handoff encode: %w", err)
	}
	return writeEnvelope(path, Envelope{Status: StatusOK, Payload: b})
}

// WriteError stores a failure envelope at path.
func WriteError(path string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return writeEnvelope(path, Envelope{Status: StatusError, Error: msg})
}

// Read decodes the envelope at path into out. A failure envelope is returned
// as *Failure; an absent or empty file as ErrMissingPayload.
func Read(path string, out any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(b) == 0) {
		return fmt.Errorf("%w: %s", ErrMissingPayload, path)
	}
	if err != nil {
		return err
	}

	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("handoff decode: %w", err)
	}
	switch env.Status {
	case StatusOK:
	case StatusError:
		return &Failure{Message: env.Error}
	default:
		return fmt.Errorf("handoff: unknown status %q", env.Status)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMissingPayload, path)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("handoff payload decode: %w", err)
	}
	return nil
}

func writeEnvelope(path string, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("handoff encode: %w", err)
	}
	return WriteFileAtomic(path, b)
}

// WriteFileAtomic writes data through a temp file in the same directory and
// renames it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp_handoff_*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
