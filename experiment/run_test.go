package experiment

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/textclf/core/model"
	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

var topicWords = map[string][]string{
	"autos":  {"car", "engine", "brake", "wheel", "driver", "tire"},
	"hockey": {"puck", "goalie", "skate", "rink", "penalty", "stick"},
	"space":  {"orbit", "rocket", "launch", "shuttle", "moon", "satellite"},
}

// writeCorpus writes 20 documents per topic plus two records with missing
// fields and one that cleans to nothing.
func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, topic := range []string{"autos", "hockey", "space"} {
		words := topicWords[topic]
		for i := 0; i < 20; i++ {
			var doc []string
			for k := 0; k < 4; k++ {
				doc = append(doc, words[(i+k)%len(words)])
			}
			doc = append(doc, "the", "news", "today")
			if err := enc.Encode(map[string]interface{}{"text": strings.Join(doc, " "), "label": topic}); err != nil {
				t.Fatal(err)
			}
		}
	}
	b.WriteString(`{"text": null, "label": "space"}` + "\n")
	b.WriteString(`{"text": "orphan post"}` + "\n")
	b.WriteString(`{"text": "42 !!! 7", "label": "autos"}` + "\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Dataset = DatasetConfig{Path: writeCorpus(t)}
	cfg.Split.TestSize = 0.25
	cfg.Vectorizer.MinDF = 1
	cfg.Vectorizer.MaxDF = 1.0
	cfg.Vectorizer.StopWords = "none"
	cfg.Visualize.SampleSize = 12
	cfg.Visualize.PCAComponents = 5
	cfg.Visualize.Iterations = 200
	cfg.Visualize.TopN = 3
	cfg.Output.Dir = t.TempDir()
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)

	rep, err := Run(context.Background(), cfg, logger)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := uuid.Parse(rep.RunID); err != nil {
		t.Errorf("RunID %q is not a uuid: %v", rep.RunID, err)
	}
	want := DatasetSizes{Loaded: 63, DroppedMissing: 2, DroppedEmpty: 1, Train: 45, Test: 15, Classes: 3}
	if rep.Sizes != want {
		t.Errorf("Sizes = %+v, want %+v", rep.Sizes, want)
	}
	if rep.Accuracy < 0.9 {
		t.Errorf("Accuracy = %v, want >= 0.9", rep.Accuracy)
	}
	if rep.LogLoss == nil {
		t.Error("LogLoss not computed")
	}
	if rep.Baseline == nil || rep.Baseline.Accuracy < 0.8 {
		t.Errorf("Baseline = %+v, want accuracy >= 0.8", rep.Baseline)
	}
	if len(rep.Steps) != 10 {
		t.Errorf("got %d step timings, want 10", len(rep.Steps))
	}
	if rep.VocabularySize != 21 {
		t.Errorf("VocabularySize = %d, want 21", rep.VocabularySize)
	}
	if got := rep.ConfusionLabels; !slices.Equal(got, []string{"autos", "hockey", "space"}) {
		t.Errorf("ConfusionLabels = %v", got)
	}
	if len(rep.PCAExplainedVariance) != 2 {
		t.Errorf("PCAExplainedVariance = %v", rep.PCAExplainedVariance)
	}

	for _, s := range rep.TopTerms {
		if len(s.Positive) == 0 {
			t.Errorf("%s: no positive terms", s.Name)
			continue
		}
		if !slices.Contains(topicWords[s.Name], s.Positive[0].Term) {
			t.Errorf("%s: top term %q is not a topic word", s.Name, s.Positive[0].Term)
		}
	}

	for _, key := range []string{"report", "model", "class_distribution", "confusion_matrix", "top_coefficients", "pca", "tsne"} {
		path, ok := rep.Artifacts[key]
		if !ok {
			t.Errorf("artifact %s missing", key)
			continue
		}
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("artifact %s not written: %v", path, err)
		}
	}

	w, err := model.LoadWeights(filepath.Join(cfg.Output.Dir, ModelFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Features) != rep.VocabularySize || w.NFeatures() != rep.VocabularySize {
		t.Errorf("model has %d features, coefficients %d wide", len(w.Features), w.NFeatures())
	}
	if !slices.Equal(w.ClassNames, []string{"autos", "hockey", "space"}) {
		t.Errorf("ClassNames = %v", w.ClassNames)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, ReportFile))
	if err != nil {
		t.Fatal(err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.RunID != rep.RunID || decoded.Accuracy != rep.Accuracy {
		t.Errorf("report.json does not match the returned report")
	}

	if !logger.ContainsMessage("Run finished") {
		t.Error("missing 'Run finished' log")
	}
	if !logger.ContainsField(log.RunIDKey, rep.RunID) {
		t.Error("log records do not carry the run id")
	}
}

func TestRun_NoPlotsNoModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Visualize.Enabled = false
	cfg.Output.SaveModel = false
	cfg.Baseline.Enabled = false

	rep, err := Run(context.Background(), cfg, log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Artifacts) != 1 {
		t.Errorf("Artifacts = %v, want only the report", rep.Artifacts)
	}
	if _, err := os.Stat(filepath.Join(cfg.Output.Dir, ModelFile)); !os.IsNotExist(err) {
		t.Errorf("model.json written with save_model=false")
	}
	if rep.Baseline != nil {
		t.Errorf("Baseline = %+v with baseline disabled", rep.Baseline)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Split.TestSize = 1.5
		var ve *errors.ValidationError
		if _, err := Run(context.Background(), cfg, log.Nop()); !errors.As(err, &ve) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := Run(ctx, testConfig(t), log.Nop()); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dataset.Path = filepath.Join(t.TempDir(), "absent.jsonl")
		var de *errors.DatasetError
		if _, err := Run(context.Background(), cfg, log.Nop()); !errors.As(err, &de) {
			t.Errorf("expected DatasetError, got %v", err)
		}
	})

	t.Run("vocabulary pruned away", func(t *testing.T) {
		cfg := testConfig(t)
		// topic words are too rare, the shared words occur in every document
		cfg.Vectorizer.MinDF = 0.9
		cfg.Vectorizer.MaxDF = 0.95
		var ev *errors.EmptyVocabularyError
		if _, err := Run(context.Background(), cfg, log.Nop()); !errors.As(err, &ev) {
			t.Errorf("expected EmptyVocabularyError, got %v", err)
		}
	})
}
