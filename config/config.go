package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/speakwise/videosignal/voice"
)

// EnvPrefix prefixes environment overrides, e.g. VIDEOSIGNAL_REMOTE_API_KEY.
const EnvPrefix = "VIDEOSIGNAL"

type Pipeline struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	LogLvl      string `yaml:"log_level"`
	WorkDir     string `yaml:"work_dir"`
	KeepWorkDir bool   `yaml:"keep_work_dir"`
	Decimals    int    `yaml:"decimals"`
	// WorkerTimeout is in seconds; 0 waits for a worker indefinitely.
	WorkerTimeout  int    `yaml:"worker_timeout"`
	DebugDump      bool   `yaml:"debug_dump"`
	ONNXRuntimeLib string `yaml:"onnxruntime_lib"`
}

type Media struct {
	FFmpeg        string `yaml:"ffmpeg"`
	FFprobe       string `yaml:"ffprobe"`
	SampleRate    int    `yaml:"sample_rate"`
	FrameInterval int    `yaml:"frame_interval"`
}

type ASR struct {
	Engine         string `yaml:"engine"` // http | sherpa
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	BeamSize       int    `yaml:"beam_size"`
	WordTimestamps bool   `yaml:"word_timestamps"`
	Encoder        string `yaml:"encoder"`
	Decoder        string `yaml:"decoder"`
	Tokens         string `yaml:"tokens"`
	VADModel       string `yaml:"vad_model"`
	NumThreads     int    `yaml:"num_threads"`
	Provider       string `yaml:"provider"`
}

type Face struct {
	DetectorModel     string  `yaml:"detector_model"`
	DetectorThreshold float64 `yaml:"detector_threshold"`
	LandmarkModel     string  `yaml:"landmark_model"`
	PresenceThreshold float64 `yaml:"presence_threshold"`
	InputSize         int     `yaml:"input_size"`
	NumThreads        int     `yaml:"num_threads"`
}

type Voice struct {
	voice.Config `yaml:",inline"`
	VADModel     string  `yaml:"vad_model"`
	VADThreshold float64 `yaml:"vad_threshold"`
}

type Remote struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	EndpointID string `yaml:"endpoint_id"`
	APIKey     string `yaml:"api_key"`
	// PollInterval and URLTTL are in seconds.
	PollInterval       int  `yaml:"poll_interval"`
	UseMultiprocessing bool `yaml:"use_multiprocessing"`
	NumWorkers         int  `yaml:"num_workers"`
	URLTTL             int  `yaml:"url_ttl"`
}

func (r Remote) Endpoint() string {
	return strings.TrimRight(r.URL, "/") + "/" + r.EndpointID
}

type Storage struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type Root struct {
	Pipeline Pipeline `yaml:"pipeline"`
	Media    Media    `yaml:"media"`
	ASR      ASR      `yaml:"asr"`
	Face     Face     `yaml:"face"`
	Voice    Voice    `yaml:"voice"`
	Remote   Remote   `yaml:"remote"`
	Storage  Storage  `yaml:"storage"`
}

func Default() *Root {
	return &Root{
		Pipeline: Pipeline{
			Name:     "videosignal",
			Version:  "1.0",
			LogLvl:   "info",
			WorkDir:  filepath.Join(os.TempDir(), "videosignal"),
			Decimals: 3,
		},
		Media: Media{FFmpeg: "ffmpeg", FFprobe: "ffprobe", SampleRate: 16000, FrameInterval: 30},
		ASR: ASR{
			Engine:         "http",
			URL:            "http://localhost:8001",
			Language:       "en",
			BeamSize:       10,
			WordTimestamps: true,
			NumThreads:     2,
			Provider:       "cpu",
		},
		Face:   Face{DetectorThreshold: 0.5, PresenceThreshold: 0.5, InputSize: 256, NumThreads: 2},
		Voice:  Voice{Config: voice.DefaultConfig(), VADThreshold: 0.5},
		Remote: Remote{URL: "https://api.runpod.ai/v2", PollInterval: 3, URLTTL: 3600},
	}
}

// Load reads path, or when path is empty the first of
// config/<CONFIG_ENV>/config.yaml and config.yaml that exists, on top of the
// defaults. Environment variables and flags bound to v override file values.
// v may be nil.
func Load(path string, v *viper.Viper) (*Root, error) {
	cfg := Default()

	guess := []string{path}
	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		guess = []string{
			filepath.Join("config", env, "config.yaml"),
			"config.yaml",
		}
	}

	found := false
	for _, p := range guess {
		f, err := os.Open(p)
		if err != nil {
			if path != "" {
				return nil, err
			}
			continue
		}
		err = yaml.NewDecoder(f).Decode(cfg)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", p, err)
		}
		log.WithField("path", p).Debug("config loaded")
		found = true
		break
	}
	if !found {
		log.Debug("no config file found, using defaults")
	}

	if v != nil {
		if err := overlay(cfg, v); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// NewViper returns a viper instance reading VIDEOSIGNAL_* environment
// variables, with dots in keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// overlay pushes every leaf of cfg through v so that env vars and bound
// flags win over file values, then decodes the result back into cfg.
func overlay(cfg *Root, v *viper.Viper) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(b, &tree); err != nil {
		return err
	}
	resolve(v, tree, "")
	if b, err = yaml.Marshal(tree); err != nil {
		return err
	}
	out := Root{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("config overrides: %w", err)
	}
	*cfg = out
	return nil
}

func resolve(v *viper.Viper, tree map[string]any, prefix string) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			resolve(v, sub, key)
			continue
		}
		v.SetDefault(key, val)
		got := v.Get(key)
		// env and flag values arrive as strings; let yaml restore the scalar type
		if str, ok := got.(string); ok {
			if _, wasString := val.(string); !wasString {
				var parsed any
				if err := yaml.Unmarshal([]byte(str), &parsed); err == nil && parsed != nil {
					got = parsed
				}
			}
		}
		tree[k] = got
	}
}

func (c *Root) Validate() error {
	var errs []error
	if c.Media.FrameInterval <= 0 {
		errs = append(errs, errors.New("media.frame_interval must be positive"))
	}
	if c.Media.SampleRate <= 0 {
		errs = append(errs, errors.New("media.sample_rate must be positive"))
	}
	if c.Pipeline.Decimals < 0 {
		errs = append(errs, errors.New("pipeline.decimals must not be negative"))
	}
	if c.Pipeline.WorkerTimeout < 0 {
		errs = append(errs, errors.New("pipeline.worker_timeout must not be negative"))
	}
	if c.Voice.FrameLength <= 0 || c.Voice.HopLength <= 0 {
		errs = append(errs, errors.New("voice.frame_length and voice.hop_length must be positive"))
	}
	if c.Voice.FMin <= 0 || c.Voice.FMin >= c.Voice.FMax {
		errs = append(errs, fmt.Errorf("voice.fmin (%v) must be positive and below voice.fmax (%v)", c.Voice.FMin, c.Voice.FMax))
	}
	switch c.ASR.Engine {
	case "http":
		if c.ASR.URL == "" {
			errs = append(errs, errors.New("asr.url is required for the http engine"))
		}
	case "sherpa":
		if c.ASR.Encoder == "" || c.ASR.Decoder == "" || c.ASR.Tokens == "" || c.ASR.VADModel == "" {
			errs = append(errs, errors.New("asr.encoder, asr.decoder, asr.tokens and asr.vad_model are required for the sherpa engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("asr.engine %q is not one of http, sherpa", c.ASR.Engine))
	}
	if c.Remote.Enabled && (c.Remote.URL == "" || c.Remote.EndpointID == "") {
		errs = append(errs, errors.New("remote.url and remote.endpoint_id are required when remote.enabled"))
	}
	return errors.Join(errs...)
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
