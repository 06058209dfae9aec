package config

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Step names, in execution order.
const (
	StepAE   = "ae"
	StepDCZ  = "dc_z"
	StepGenZ = "gen_z"
	StepDCX  = "dc_x"
	StepGenX = "gen_x"
)

// StepNames lists every training sub-step in the order they run.
var StepNames = []string{StepAE, StepDCZ, StepGenZ, StepDCX, StepGenX}

// Dataset sources.
const (
	SourceIDX       = "idx"
	SourceShards    = "shards"
	SourceSynthetic = "synthetic"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Experiment string `yaml:"experiment"`
	OutputDir  string `yaml:"output_dir"`
	Seed       int64  `yaml:"seed"`

	Data       Data       `yaml:"data"`
	Model      Model      `yaml:"model"`
	Train      Train      `yaml:"train"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
}

// Data selects where images come from.
type Data struct {
	Source    string `yaml:"source"`
	Dir       string `yaml:"dir"`
	TrainRoot string `yaml:"train_root"`
	TestRoot  string `yaml:"test_root"`
	// NumWorkers bounds concurrent shard readers.
	NumWorkers int `yaml:"num_workers"`
	// SyntheticSize is the number of zero images for the synthetic source.
	SyntheticSize int `yaml:"synthetic_size"`
}

// Model holds architecture knobs.
type Model struct {
	LatentDim int `yaml:"latent_dim"`
}

// Train holds optimisation knobs.
type Train struct {
	Epochs         int             `yaml:"epochs"`
	BatchSize      int             `yaml:"batch_size"`
	LearningRate   float64         `yaml:"learning_rate"`
	AELossWeight   float64         `yaml:"ae_loss_weight"`
	GenLossWeight  float64         `yaml:"gen_loss_weight"`
	DCLossWeight   float64         `yaml:"dc_loss_weight"`
	VisualizeEvery int             `yaml:"visualize_every"`
	Updates        map[string]bool `yaml:"updates"`
	Resume         string          `yaml:"resume"`
}

// Checkpoint controls parameter snapshots.
type Checkpoint struct {
	Enabled bool `yaml:"enabled"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Experiment string
	OutputDir  string
	Source     string
	DataDir    string
	Epochs     int
	BatchSize  int
	Seed       int64
	Updates    map[string]bool
	Resume     string
}

// Default returns the reference configuration: only the autoencoder update
// is applied, the adversarial updates are computed but not stepped.
func Default() *Config {
	return &Config{
		Experiment: "unsupervised_aae_deterministic_w_discriminator",
		OutputDir:  "outputs",
		Seed:       42,
		Data: Data{
			Source:        SourceIDX,
			Dir:           "data/mnist",
			NumWorkers:    4,
			SyntheticSize: 256,
		},
		Model: Model{LatentDim: 2},
		Train: Train{
			Epochs:         200,
			BatchSize:      256,
			LearningRate:   1e-4,
			AELossWeight:   1,
			GenLossWeight:  1,
			DCLossWeight:   1,
			VisualizeEvery: 10,
			Updates: map[string]bool{
				StepAE:   true,
				StepDCZ:  false,
				StepGenZ: false,
				StepDCX:  false,
				StepGenX: false,
			},
		},
	}
}

// Load reads a Config from YAML on top of Default and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Experiment != "" {
		c.Experiment = o.Experiment
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.Source != "" {
		c.Data.Source = o.Source
	}
	if o.DataDir != "" {
		c.Data.Dir = o.DataDir
	}
	if o.Epochs > 0 {
		c.Train.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.Train.BatchSize = o.BatchSize
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Resume != "" {
		c.Train.Resume = o.Resume
	}
	for name, on := range o.Updates {
		if c.Train.Updates == nil {
			c.Train.Updates = map[string]bool{}
		}
		c.Train.Updates[name] = on
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Experiment == "" {
		return errors.New("experiment must be set")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must be set")
	}
	switch c.Data.Source {
	case SourceIDX:
		if c.Data.Dir == "" {
			return errors.New("data.dir must be set for idx source")
		}
	case SourceShards:
		if c.Data.TrainRoot == "" || c.Data.TestRoot == "" {
			return errors.New("data.train_root and data.test_root must be set for shards source")
		}
	case SourceSynthetic:
		if c.Data.SyntheticSize <= 0 {
			return errors.Errorf("data.synthetic_size must be > 0 (got %d)", c.Data.SyntheticSize)
		}
	default:
		return errors.Errorf("unknown data.source %q", c.Data.Source)
	}
	if c.Data.NumWorkers <= 0 {
		c.Data.NumWorkers = 1
	}
	if c.Model.LatentDim <= 0 {
		return errors.Errorf("model.latent_dim must be > 0 (got %d)", c.Model.LatentDim)
	}
	if c.Train.Epochs <= 0 {
		return errors.Errorf("train.epochs must be > 0 (got %d)", c.Train.Epochs)
	}
	if c.Train.BatchSize <= 0 {
		return errors.Errorf("train.batch_size must be > 0 (got %d)", c.Train.BatchSize)
	}
	if c.Train.LearningRate <= 0 {
		return errors.Errorf("train.learning_rate must be > 0 (got %g)", c.Train.LearningRate)
	}
	if c.Train.VisualizeEvery <= 0 {
		c.Train.VisualizeEvery = 10
	}
	for name := range c.Train.Updates {
		if !knownStep(name) {
			return errors.Errorf("train.updates: unknown step %q (want one of %s)", name, strings.Join(StepNames, ", "))
		}
	}
	return nil
}

// UpdateEnabled reports whether the optimizer update for step is applied.
func (c *Config) UpdateEnabled(step string) bool {
	return c.Train.Updates[step]
}

// ParseUpdate parses a "name=bool" CLI token.
func ParseUpdate(token string) (string, bool, error) {
	parts := strings.SplitN(token, "=", 2)
	if len(parts) != 2 {
		return "", false, errors.Errorf("update %q: want name=bool", token)
	}
	name := strings.TrimSpace(parts[0])
	if !knownStep(name) {
		return "", false, errors.Errorf("update %q: unknown step %q", token, name)
	}
	on, err := strconv.ParseBool(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", false, errors.Wrapf(err, "update %q", token)
	}
	return name, on, nil
}

// EnabledSteps returns the sorted names of steps whose update is applied.
func (c *Config) EnabledSteps() []string {
	var out []string
	for name, on := range c.Train.Updates {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func knownStep(name string) bool {
	for _, s := range StepNames {
		if s == name {
			return true
		}
	}
	return false
}
