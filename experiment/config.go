// Package experiment runs the newsgroup classification pipeline end to end:
// load, clean, split, vectorise, fit, evaluate, plot and report.
package experiment

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/sklearn/datasets"
	"github.com/YuminosukeSato/textclf/sklearn/linear_model"
)

// Config is the YAML run configuration. Every field has a default in
// DefaultConfig.
type Config struct {
	Dataset    DatasetConfig    `yaml:"dataset" json:"dataset"`
	Cleaning   CleaningConfig   `yaml:"cleaning" json:"cleaning"`
	Split      SplitConfig      `yaml:"split" json:"split"`
	Vectorizer VectorizerConfig `yaml:"vectorizer" json:"vectorizer"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Baseline   BaselineConfig   `yaml:"baseline" json:"baseline"`
	Visualize  VisualizeConfig  `yaml:"visualize" json:"visualize"`
	Output     OutputConfig     `yaml:"output" json:"output"`
}

// DatasetConfig selects the corpus.
type DatasetConfig struct {
	// Name of a remote dataset; ignored when Path is set.
	Name       string   `yaml:"name" json:"name"`
	Path       string   `yaml:"path" json:"path,omitempty"`
	Subset     string   `yaml:"subset" json:"subset"`
	Remove     []string `yaml:"remove" json:"remove"`
	Categories []string `yaml:"categories" json:"categories,omitempty"`
	DataHome   string   `yaml:"data_home" json:"data_home,omitempty"`
	URL        string   `yaml:"url" json:"url,omitempty"`
	// Checksum overrides the archive SHA-256; an empty string disables the check.
	Checksum *string `yaml:"checksum" json:"-"`

	TextColumn      string `yaml:"text_column" json:"text_column,omitempty"`
	LabelColumn     string `yaml:"label_column" json:"label_column,omitempty"`
	LabelNameColumn string `yaml:"label_name_column" json:"label_name_column,omitempty"`
}

// CleaningConfig toggles the regex cleaning steps.
type CleaningConfig struct {
	Lowercase    bool `yaml:"lowercase" json:"lowercase"`
	StripAccents bool `yaml:"strip_accents" json:"strip_accents"`
	RemoveEmails bool `yaml:"remove_emails" json:"remove_emails"`
	RemoveURLs   bool `yaml:"remove_urls" json:"remove_urls"`
	RemoveHTML   bool `yaml:"remove_html" json:"remove_html"`
	RemoveDigits bool `yaml:"remove_digits" json:"remove_digits"`
	LettersOnly  bool `yaml:"letters_only" json:"letters_only"`
	MinTokenLen  int  `yaml:"min_token_len" json:"min_token_len"`
	Workers      int  `yaml:"workers" json:"workers"`
}

// SplitConfig controls the train/test split.
type SplitConfig struct {
	TestSize float64 `yaml:"test_size" json:"test_size"`
	Seed     uint64  `yaml:"seed" json:"seed"`
	Stratify bool    `yaml:"stratify" json:"stratify"`
}

// VectorizerConfig mirrors the TF-IDF options.
type VectorizerConfig struct {
	MinDF       float64 `yaml:"min_df" json:"min_df"`
	MaxDF       float64 `yaml:"max_df" json:"max_df"`
	MaxFeatures int     `yaml:"max_features" json:"max_features"`
	// StopWords is "english", "none" or empty (none).
	StopWords   string `yaml:"stop_words" json:"stop_words"`
	SublinearTF bool   `yaml:"sublinear_tf" json:"sublinear_tf"`
	Norm        string `yaml:"norm" json:"norm"`
}

// ClassifierConfig mirrors the logistic regression options.
type ClassifierConfig struct {
	C          float64 `yaml:"c" json:"c"`
	MaxIter    int     `yaml:"max_iter" json:"max_iter"`
	Tol        float64 `yaml:"tol" json:"tol"`
	MultiClass string  `yaml:"multi_class" json:"multi_class"`
	Workers    int     `yaml:"workers" json:"workers"`
}

// BaselineConfig controls the multinomial naive Bayes baseline fitted on the
// same features as the main classifier.
type BaselineConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	Alpha   float64 `yaml:"alpha" json:"alpha"`
}

// VisualizeConfig controls the plots.
type VisualizeConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	SampleSize int  `yaml:"sample_size" json:"sample_size"`
	// PCAComponents is the dimension of the PCA reduction fed to t-SNE.
	PCAComponents int     `yaml:"pca_components" json:"pca_components"`
	Perplexity    float64 `yaml:"perplexity" json:"perplexity"`
	LearningRate  float64 `yaml:"learning_rate" json:"learning_rate"`
	Iterations    int     `yaml:"iterations" json:"iterations"`
	TopN          int     `yaml:"top_n" json:"top_n"`
	Format        string  `yaml:"format" json:"format"`
}

// OutputConfig controls the artefacts written to disk.
type OutputConfig struct {
	Dir       string `yaml:"dir" json:"dir"`
	SaveModel bool   `yaml:"save_model" json:"save_model"`
}

// DefaultConfig returns the configuration of the reference run.
func DefaultConfig() Config {
	return Config{
		Dataset: DatasetConfig{
			Name:   datasets.NewsgroupsName,
			Subset: datasets.SubsetAll,
			Remove: []string{datasets.RemoveHeaders, datasets.RemoveFooters, datasets.RemoveQuotes},
		},
		Cleaning: CleaningConfig{
			Lowercase:    true,
			StripAccents: true,
			RemoveEmails: true,
			RemoveURLs:   true,
			RemoveHTML:   true,
			RemoveDigits: true,
			LettersOnly:  true,
			MinTokenLen:  2,
		},
		Split: SplitConfig{TestSize: 0.2, Seed: 42, Stratify: true},
		Vectorizer: VectorizerConfig{
			MinDF:       5,
			MaxDF:       0.5,
			MaxFeatures: 10000,
			StopWords:   "english",
			Norm:        "l2",
		},
		Classifier: ClassifierConfig{
			C:          1.0,
			MaxIter:    1000,
			Tol:        1e-4,
			MultiClass: linear_model.MultiClassOvR,
		},
		Baseline: BaselineConfig{Enabled: true, Alpha: 0.01},
		Visualize: VisualizeConfig{
			Enabled:       true,
			SampleSize:    1000,
			PCAComponents: 50,
			Perplexity:    30,
			LearningRate:  200,
			Iterations:    1000,
			TopN:          10,
			Format:        "png",
		},
		Output: OutputConfig{Dir: "out", SaveModel: true},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()
	return DecodeConfig(f)
}

// DecodeConfig decodes YAML from r over DefaultConfig and validates the result.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, errors.Wrap(err, "decode config")
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section and returns a ValidationError naming the
// first offending parameter.
func (c Config) Validate() error {
	if c.Dataset.Name == "" && c.Dataset.Path == "" {
		return errors.NewValidationError("dataset.name", "either dataset.name or dataset.path is required", "")
	}
	if c.Cleaning.MinTokenLen < 0 {
		return errors.NewValidationError("cleaning.min_token_len", "must be non-negative", c.Cleaning.MinTokenLen)
	}
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return errors.NewValidationError("split.test_size", "must be in (0, 1)", c.Split.TestSize)
	}
	if c.Vectorizer.MinDF < 0 {
		return errors.NewValidationError("vectorizer.min_df", "must be non-negative", c.Vectorizer.MinDF)
	}
	if c.Vectorizer.MaxDF <= 0 {
		return errors.NewValidationError("vectorizer.max_df", "must be positive", c.Vectorizer.MaxDF)
	}
	if c.Vectorizer.MaxFeatures < 0 {
		return errors.NewValidationError("vectorizer.max_features", "must be non-negative", c.Vectorizer.MaxFeatures)
	}
	switch c.Vectorizer.StopWords {
	case "", "none", "english":
	default:
		return errors.NewValidationError("vectorizer.stop_words", "must be english or none", c.Vectorizer.StopWords)
	}
	switch c.Vectorizer.Norm {
	case "", "l1", "l2", "max", "none":
	default:
		return errors.NewValidationError("vectorizer.norm", "must be l1, l2, max or none", c.Vectorizer.Norm)
	}
	if c.Classifier.C <= 0 {
		return errors.NewValidationError("classifier.c", "must be positive", c.Classifier.C)
	}
	if c.Classifier.MaxIter < 1 {
		return errors.NewValidationError("classifier.max_iter", "must be positive", c.Classifier.MaxIter)
	}
	if c.Classifier.Tol < 0 {
		return errors.NewValidationError("classifier.tol", "must be non-negative", c.Classifier.Tol)
	}
	switch c.Classifier.MultiClass {
	case linear_model.MultiClassOvR, linear_model.MultiClassMultinomial:
	default:
		return errors.NewValidationError("classifier.multi_class", "must be ovr or multinomial", c.Classifier.MultiClass)
	}
	if c.Baseline.Enabled && c.Baseline.Alpha < 0 {
		return errors.NewValidationError("baseline.alpha", "must be non-negative", c.Baseline.Alpha)
	}
	if c.Visualize.Enabled {
		v := c.Visualize
		if v.SampleSize < 3 {
			return errors.NewValidationError("visualize.sample_size", "must be at least 3", v.SampleSize)
		}
		if v.PCAComponents < 2 {
			return errors.NewValidationError("visualize.pca_components", "must be at least 2", v.PCAComponents)
		}
		if v.Perplexity <= 0 {
			return errors.NewValidationError("visualize.perplexity", "must be positive", v.Perplexity)
		}
		if v.LearningRate <= 0 {
			return errors.NewValidationError("visualize.learning_rate", "must be positive", v.LearningRate)
		}
		if v.Iterations < 1 {
			return errors.NewValidationError("visualize.iterations", "must be positive", v.Iterations)
		}
		if v.TopN < 1 {
			return errors.NewValidationError("visualize.top_n", "must be positive", v.TopN)
		}
		switch v.Format {
		case "png", "svg", "pdf":
		default:
			return errors.NewValidationError("visualize.format", "must be png, svg or pdf", v.Format)
		}
	}
	if c.Output.Dir == "" {
		return errors.NewValidationError("output.dir", "must not be empty", "")
	}
	return nil
}

// source converts the dataset section for datasets.Load.
func (d DatasetConfig) source() datasets.Source {
	return datasets.Source{
		Name:       d.Name,
		Path:       d.Path,
		Subset:     d.Subset,
		Remove:     d.Remove,
		Categories: d.Categories,
		DataHome:   d.DataHome,
		URL:        d.URL,
		Checksum:   d.Checksum,
		Columns: datasets.Columns{
			Text:      d.TextColumn,
			Label:     d.LabelColumn,
			LabelName: d.LabelNameColumn,
		},
	}
}

func (o OutputConfig) path(name string) string {
	return filepath.Join(o.Dir, name)
}
