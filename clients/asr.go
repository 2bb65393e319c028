package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

type Word struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Word        string  `json:"word"`
	Probability float64 `json:"probability"`
}

type TransSeg struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}
type ASRResp struct {
	Segments []TransSeg `json:"segments"`
	Language string     `json:"language"`
	Duration float64    `json:"duration"`
}

// ASROptions are sent as form fields next to the audio file.
type ASROptions struct {
	Model          string
	Language       string
	BeamSize       int
	WordTimestamps bool
}

func (o ASROptions) fields() map[string]string {
	f := map[string]string{
		"word_timestamps": strconv.FormatBool(o.WordTimestamps),
	}
	if o.Model != "" {
		f["model"] = o.Model
	}
	if o.Language != "" {
		f["language"] = o.Language
	}
	if o.BeamSize > 0 {
		f["beam_size"] = strconv.Itoa(o.BeamSize)
	}
	return f
}

func (h *HTTP) ASR(ctx context.Context, url, wavPath string, opts ASROptions) (*ASRResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	for k, v := range opts.fields() {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	fw, err := w.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/transcribe", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("asr %s: %s", resp.Status, string(body))
	}

	var out ASRResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("asr decode: %w", err)
	}
	return &out, nil
}
