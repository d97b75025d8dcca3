package datasets

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

const (
	// NewsgroupsName is the dataset name accepted by Load.
	NewsgroupsName = "20newsgroups"

	// DefaultNewsgroupsURL serves the 20news-bydate archive.
	DefaultNewsgroupsURL = "https://ndownloader.figshare.com/files/5975967"

	// NewsgroupsChecksum is the SHA-256 of the archive at DefaultNewsgroupsURL.
	NewsgroupsChecksum = "8f1b2514ca22a5ade8fbb9cfa5727df95fa587f4c87b786e15c759fa66d95610"

	newsgroupsArchive = "20news-bydate.tar.gz"
	trainPrefix       = "20news-bydate-train"
	testPrefix        = "20news-bydate-test"
)

// Subsets accepted by WithSubset.
const (
	SubsetTrain = "train"
	SubsetTest  = "test"
	SubsetAll   = "all"
)

type fetchConfig struct {
	dataHome   string
	subset     string
	remove     []string
	categories []string
	url        string
	checksum   string
	client     *http.Client
	logger     log.Logger
}

// FetchOption configures Fetch20Newsgroups.
type FetchOption func(*fetchConfig)

// WithDataHome sets the cache directory. The default is $TEXTCLF_DATA or
// ~/textclf_data.
func WithDataHome(dir string) FetchOption {
	return func(c *fetchConfig) { c.dataHome = dir }
}

// WithSubset selects "train", "test" or "all" (the default).
func WithSubset(subset string) FetchOption {
	return func(c *fetchConfig) { c.subset = subset }
}

// WithRemove strips post parts: any of "headers", "footers", "quotes".
func WithRemove(parts ...string) FetchOption {
	return func(c *fetchConfig) { c.remove = append([]string(nil), parts...) }
}

// WithCategories keeps only the named newsgroups. Labels are re-indexed over
// the kept names in sorted order.
func WithCategories(names ...string) FetchOption {
	return func(c *fetchConfig) { c.categories = append([]string(nil), names...) }
}

// WithURL overrides the download location.
func WithURL(url string) FetchOption {
	return func(c *fetchConfig) { c.url = url }
}

// WithChecksum sets the expected SHA-256 of the archive; empty disables the check.
func WithChecksum(sum string) FetchOption {
	return func(c *fetchConfig) { c.checksum = sum }
}

// WithHTTPClient sets the client used for the download.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) { c.client = client }
}

// WithLogger sets the logger for download and parse progress.
func WithLogger(logger log.Logger) FetchOption {
	return func(c *fetchConfig) { c.logger = logger }
}

// DefaultDataHome returns $TEXTCLF_DATA, or ~/textclf_data when unset.
func DefaultDataHome() string {
	if dir := os.Getenv("TEXTCLF_DATA"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "textclf_data"
	}
	return filepath.Join(home, "textclf_data")
}

// Fetch20Newsgroups returns the 20 Newsgroups "bydate" corpus.
//
// The archive is downloaded once into the data home and read from there on
// later calls. Documents are decoded as Latin-1, ordered by newsgroup and
// then by file name, and labelled by the index of their newsgroup in the
// sorted list of group names.
func Fetch20Newsgroups(ctx context.Context, opts ...FetchOption) (*Dataset, error) {
	cfg := fetchConfig{
		subset:   SubsetAll,
		url:      DefaultNewsgroupsURL,
		checksum: NewsgroupsChecksum,
		client:   &http.Client{Timeout: 10 * time.Minute},
		logger:   log.GetLoggerWithName("datasets"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dataHome == "" {
		cfg.dataHome = DefaultDataHome()
	}
	switch cfg.subset {
	case SubsetTrain, SubsetTest, SubsetAll:
	default:
		return nil, scierrors.NewValidationError("subset", "must be train, test or all", cfg.subset)
	}
	for _, part := range cfg.remove {
		if !validRemove(part) {
			return nil, scierrors.NewValidationError("remove", "must be headers, footers or quotes", part)
		}
	}

	archivePath, err := ensureArchive(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, scierrors.NewDatasetError(NewsgroupsName, "open cached archive", err)
	}
	defer f.Close()

	start := time.Now()
	ds, err := readNewsgroupsArchive(ctx, f, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.logger.Info("Newsgroups loaded",
		log.DatasetKey, NewsgroupsName,
		log.SubsetKey, cfg.subset,
		log.DocumentsKey, ds.Len(),
		log.ClassesKey, ds.NClasses(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ds, nil
}

// ensureArchive returns the cached archive path, downloading it first if needed.
func ensureArchive(ctx context.Context, cfg *fetchConfig) (string, error) {
	dir := filepath.Join(cfg.dataHome, "20news_home")
	archivePath := filepath.Join(dir, newsgroupsArchive)
	if st, err := os.Stat(archivePath); err == nil && st.Size() > 0 {
		cfg.logger.Debug("Using cached archive", log.PathKey, archivePath)
		return archivePath, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", scierrors.NewDatasetError(NewsgroupsName, "create data home", err)
	}

	cfg.logger.Info("Downloading dataset", log.DatasetKey, NewsgroupsName, "url", cfg.url)
	if err := download(ctx, cfg, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

func download(ctx context.Context, cfg *fetchConfig, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.url, nil)
	if err != nil {
		return scierrors.NewDatasetError(NewsgroupsName, "build request", err)
	}
	resp, err := cfg.client.Do(req)
	if err != nil {
		return scierrors.NewDatasetError(NewsgroupsName, "download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return scierrors.NewDatasetError(NewsgroupsName, fmt.Sprintf("download failed: HTTP %d", resp.StatusCode), nil)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return scierrors.NewDatasetError(NewsgroupsName, "create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return scierrors.NewDatasetError(NewsgroupsName, "write archive", err)
	}
	if cfg.checksum != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != cfg.checksum {
			return scierrors.NewDatasetError(NewsgroupsName,
				fmt.Sprintf("checksum mismatch: expected %s, got %s", cfg.checksum, got), nil)
		}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return scierrors.NewDatasetError(NewsgroupsName, "store archive", err)
	}
	cfg.logger.Info("Download complete", log.PathKey, dst, "bytes", n)
	return nil
}

type rawPost struct {
	split string
	group string
	name  string
	text  string
}

// readNewsgroupsArchive parses a 20news-bydate tar.gz stream.
func readNewsgroupsArchive(ctx context.Context, r io.Reader, cfg *fetchConfig) (*Dataset, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, scierrors.NewDatasetError(NewsgroupsName, "not a gzip archive", err)
	}
	defer gz.Close()

	decoder := charmap.ISO8859_1.NewDecoder()
	tr := tar.NewReader(gz)
	var posts []rawPost
	groups := map[string]struct{}{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, scierrors.NewDatasetError(NewsgroupsName, "corrupt tar archive", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		parts := strings.Split(path.Clean(strings.TrimPrefix(hdr.Name, "./")), "/")
		if len(parts) != 3 {
			continue
		}
		split, group, name := parts[0], parts[1], parts[2]
		if split != trainPrefix && split != testPrefix {
			continue
		}
		groups[group] = struct{}{}
		if !wantSplit(cfg.subset, split) {
			continue
		}
		if len(cfg.categories) > 0 && !slices.Contains(cfg.categories, group) {
			continue
		}
		raw, err := io.ReadAll(tr)
		if err != nil {
			return nil, scierrors.NewDatasetError(NewsgroupsName, "read "+hdr.Name, err)
		}
		text, err := decoder.Bytes(raw)
		if err != nil {
			return nil, scierrors.NewDatasetError(NewsgroupsName, "decode "+hdr.Name, err)
		}
		posts = append(posts, rawPost{split: split, group: group, name: name, text: string(text)})
	}
	if len(groups) == 0 {
		return nil, scierrors.NewDatasetError(NewsgroupsName, "archive contains no newsgroup folders", nil)
	}

	targetNames := make([]string, 0, len(groups))
	for g := range groups {
		if len(cfg.categories) == 0 || slices.Contains(cfg.categories, g) {
			targetNames = append(targetNames, g)
		}
	}
	sort.Strings(targetNames)
	for _, c := range cfg.categories {
		if _, ok := groups[c]; !ok {
			return nil, scierrors.NewValidationError("categories", "unknown newsgroup", c)
		}
	}
	labelOf := make(map[string]int, len(targetNames))
	for i, g := range targetNames {
		labelOf[g] = i
	}

	// train before test, then group, then file name
	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.split != b.split {
			return a.split == trainPrefix
		}
		if a.group != b.group {
			return a.group < b.group
		}
		return a.name < b.name
	})

	docs := make([]Document, len(posts))
	for i, p := range posts {
		docs[i] = Document{
			Text:      stripParts(p.text, cfg.remove),
			Label:     labelOf[p.group],
			LabelName: p.group,
			ID:        p.split + "/" + p.group + "/" + p.name,
		}
	}
	return &Dataset{Name: NewsgroupsName, Docs: docs, TargetNames: targetNames}, nil
}

func wantSplit(subset, split string) bool {
	switch subset {
	case SubsetTrain:
		return split == trainPrefix
	case SubsetTest:
		return split == testPrefix
	default:
		return true
	}
}
