package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ErrRemoteJobFailed is returned when the remote executor reports a failed
// or cancelled job, or a completed job whose output carries an error.
var ErrRemoteJobFailed = errors.New("remote job failed")

// FramesJob is the input of a remote frame-processing job.
type FramesJob struct {
	VideoURL           string `json:"video_url"`
	TextTranscript     any    `json:"text_transcript"`
	FrameInterval      int    `json:"frame_interval"`
	UseMultiprocessing bool   `json:"use_multiprocessing"`
	NumWorkers         int    `json:"num_workers,omitempty"`
}

// Remote talks to a serverless job endpoint: jobs are submitted with
// POST {Endpoint}/run and polled with GET {Endpoint}/status/{id}.
type Remote struct {
	Endpoint string
	APIKey   string
	Poll     time.Duration
}

type jobStatus struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// RunFrames submits job and blocks until it finishes or ctx is done. The raw
// job output is returned for the caller to decode.
func (h *HTTP) RunFrames(ctx context.Context, r Remote, job FramesJob) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{"input": job})
	if err != nil {
		return nil, err
	}
	var st jobStatus
	if err := h.remoteDo(ctx, r, http.MethodPost, "/run", body, &st); err != nil {
		return nil, err
	}
	if st.ID == "" {
		return nil, fmt.Errorf("remote run: no job id in response (status %q)", st.Status)
	}
	lg := log.WithField("job_id", st.ID)
	lg.Info("remote frames job submitted")

	poll := r.Poll
	if poll <= 0 {
		poll = 3 * time.Second
	}
	tick := time.NewTicker(poll)
	defer tick.Stop()

	for {
		switch strings.ToUpper(st.Status) {
		case "COMPLETED":
			if e := gjson.GetBytes(st.Output, "error"); e.Exists() {
				return nil, fmt.Errorf("%w: %s", ErrRemoteJobFailed, e.String())
			}
			lg.Info("remote frames job completed")
			return st.Output, nil
		case "FAILED", "CANCELLED", "TIMED_OUT":
			return nil, fmt.Errorf("%w: job %s %s: %s", ErrRemoteJobFailed, st.ID, st.Status, st.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tick.C:
		}

		id := st.ID
		st = jobStatus{}
		if err := h.remoteDo(ctx, r, http.MethodGet, "/status/"+id, nil, &st); err != nil {
			return nil, err
		}
		if st.ID == "" {
			st.ID = id
		}
		lg.WithField("status", st.Status).Debug("remote frames job polled")
	}
}

func (h *HTTP) remoteDo(ctx context.Context, r Remote, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.Endpoint, "/")+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote %s: %s", resp.Status, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote decode: %w", err)
	}
	return nil
}
