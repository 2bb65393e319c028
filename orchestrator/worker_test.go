package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakwise/videosignal/handoff"
)

// helperMain stands in for the `worker` subcommand when the test binary is
// re-executed by a Spawner. HELPER_MODE picks the behaviour.
func helperMain() int {
	var stage, in, out string
	args := os.Args[1:]
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--stage":
			stage = args[i+1]
		case "--in":
			in = args[i+1]
		case "--out":
			out = args[i+1]
		}
	}

	var fn StageFunc
	switch os.Getenv("HELPER_MODE") {
	case "crash":
		// dies before writing anything, like an OOM kill
		return 3
	case "hang":
		time.Sleep(time.Minute)
		return 0
	case "panic":
		fn = func(context.Context, StageInput) (any, error) {
			var s []int
			_ = s[5]
			return nil, nil
		}
	default:
		fn = func(_ context.Context, si StageInput) (any, error) {
			return map[string]string{"stage": stage, "video_id": si.VideoID}, nil
		}
	}
	if err := ServeStage(context.Background(), fn, in, out); err != nil {
		return 1
	}
	return 0
}

func helperSpawner(t *testing.T, mode string) *Spawner {
	t.Helper()
	return &Spawner{
		Exe: os.Args[0],
		Env: []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
	}
}

func helperJob(t *testing.T, stage Stage) Job {
	t.Helper()
	dir := t.TempDir()
	job := Job{Stage: stage, Input: filepath.Join(dir, "in.json"), Output: filepath.Join(dir, "out.json")}
	require.NoError(t, handoff.Write(job.Input, StageInput{VideoID: "vid"}))
	return job
}

func TestSpawnerSuccess(t *testing.T) {
	t.Parallel()

	job := helperJob(t, StageText)
	require.NoError(t, helperSpawner(t, "ok").Run(context.Background(), job))

	var got map[string]string
	require.NoError(t, handoff.Read(job.Output, &got))
	assert.Equal(t, "text", got["stage"])
	assert.Equal(t, "vid", got["video_id"])
}

func TestSpawnerPanickingWorkerReportsError(t *testing.T) {
	t.Parallel()

	job := helperJob(t, StageFrames)
	err := helperSpawner(t, "panic").Run(context.Background(), job)

	var xe *ExitError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, 1, xe.Code)
	assert.Equal(t, StageFrames, xe.Stage)

	var f *handoff.Failure
	require.ErrorAs(t, handoff.Read(job.Output, &struct{}{}), &f)
	assert.Contains(t, f.Message, "panic")
}

func TestSpawnerCrashLeavesNoEnvelope(t *testing.T) {
	t.Parallel()

	job := helperJob(t, StageVoice)
	err := helperSpawner(t, "crash").Run(context.Background(), job)

	var xe *ExitError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, 3, xe.Code)
	assert.False(t, xe.TimedOut)
	assert.ErrorIs(t, handoff.Read(job.Output, &struct{}{}), handoff.ErrMissingPayload)
}

func TestSpawnerTimeout(t *testing.T) {
	t.Parallel()

	sp := helperSpawner(t, "hang")
	sp.Timeout = 300 * time.Millisecond
	start := time.Now()
	err := sp.Run(context.Background(), helperJob(t, StageText))

	var xe *ExitError
	require.ErrorAs(t, err, &xe)
	assert.True(t, xe.TimedOut)
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestSpawnerMissingExecutable(t *testing.T) {
	t.Parallel()

	sp := &Spawner{Exe: filepath.Join(t.TempDir(), "no-such-binary")}
	err := sp.Run(context.Background(), helperJob(t, StageText))
	require.Error(t, err)
	var xe *ExitError
	assert.False(t, errors.As(err, &xe))
}

func TestTailBufferKeepsEnd(t *testing.T) {
	var tb tailBuffer
	stderr := os.Stderr
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	os.Stderr = devnull
	defer func() { os.Stderr = stderr; devnull.Close() }()

	chunk := make([]byte, 1024)
	for i := range chunk {
		chunk[i] = 'a'
	}
	for range 8 {
		_, _ = tb.Write(chunk)
	}
	_, _ = tb.Write([]byte("last line\n"))
	s := tb.String()
	assert.LessOrEqual(t, len(s), tailLimit)
	assert.Contains(t, s, "last line")
}
