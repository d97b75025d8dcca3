package datasets

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

// Source describes where a dataset comes from. Either Name or Path is set.
type Source struct {
	// Name selects a named remote dataset ("20newsgroups").
	Name string
	// Path is a local .jsonl/.ndjson or .csv file.
	Path string

	Columns Columns

	// Newsgroups fetch settings.
	Subset     string
	Remove     []string
	Categories []string
	DataHome   string
	URL        string
	Checksum   *string
}

// Load reads the dataset described by src.
func Load(ctx context.Context, src Source, logger log.Logger) (*Dataset, error) {
	if logger == nil {
		logger = log.GetLoggerWithName("datasets")
	}
	if src.Path != "" {
		return loadFile(src.Path, src.Columns, logger)
	}

	switch strings.ToLower(src.Name) {
	case NewsgroupsName, "20news", "newsgroups":
		opts := []FetchOption{WithLogger(logger), WithRemove(src.Remove...)}
		if src.Subset != "" {
			opts = append(opts, WithSubset(src.Subset))
		}
		if len(src.Categories) > 0 {
			opts = append(opts, WithCategories(src.Categories...))
		}
		if src.DataHome != "" {
			opts = append(opts, WithDataHome(src.DataHome))
		}
		if src.URL != "" {
			opts = append(opts, WithURL(src.URL))
		}
		if src.Checksum != nil {
			opts = append(opts, WithChecksum(*src.Checksum))
		}
		return Fetch20Newsgroups(ctx, opts...)
	case "":
		return nil, scierrors.NewValidationError("dataset", "either a name or a path is required", src)
	default:
		return nil, scierrors.NewDatasetError(src.Name, "unknown dataset name", nil)
	}
}

func loadFile(path string, cols Columns, logger log.Logger) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, scierrors.NewDatasetError(path, "open", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	var ds *Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		ds, err = LoadJSONL(f, name, cols)
	case ".csv":
		ds, err = LoadCSV(f, name, cols)
	default:
		return nil, scierrors.NewDatasetError(path, "unsupported file extension (want .jsonl, .ndjson or .csv)", nil)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Dataset file loaded",
		log.DatasetKey, path,
		log.DocumentsKey, ds.Len(),
		log.ClassesKey, ds.NClasses(),
	)
	return ds, nil
}
