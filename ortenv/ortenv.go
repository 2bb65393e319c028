// Package ortenv initializes the process-wide ONNX Runtime environment once
// per worker process.
package ortenv

import (
	"errors"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	mu          sync.Mutex
	initialized bool
)

var searchPaths = []string{
	"./libonnxruntime.so",
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"./libonnxruntime.dylib",
}

// Init loads the shared library and creates the environment. libPath may be
// empty, in which case ONNXRUNTIME_SHARED_LIBRARY_PATH and a few standard
// locations are tried.
func Init(libPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return nil
	}

	if libPath == "" {
		libPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	if libPath == "" {
		for _, p := range searchPaths {
			if _, err := os.Stat(p); err == nil {
				libPath = p
				break
			}
		}
	}
	if libPath == "" {
		return errors.New("onnxruntime shared library not found")
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnxruntime init: %w", err)
	}
	initialized = true
	log.WithField("lib", libPath).Debug("onnxruntime initialized")
	return nil
}

// Shutdown tears the environment down. Workers call it before exiting; the
// bulk of native memory is only returned when the process terminates.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		log.WithError(err).Warn("onnxruntime shutdown")
	}
	initialized = false
}

// IONames returns the input and output tensor names declared by a model file.
func IONames(modelPath string) (inputs, outputs []string, err error) {
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("model info %s: %w", modelPath, err)
	}
	for _, i := range in {
		inputs = append(inputs, i.Name)
	}
	for _, o := range out {
		outputs = append(outputs, o.Name)
	}
	return inputs, outputs, nil
}
