package infrastructure

import (
	"bufio"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidFileFormat = errors.New("invalid file format")
	ErrColumnNotFound    = errors.New("column not found")
	ErrUnknownDataset    = errors.New("unknown dataset")
)

const datasetBaseURL = "https://github.com/petroniocandido/pyFTS/raw/8f20f3634aa6a8f58083bdcd1bbf93795e6ed767/pyFTS/data/"

type source struct {
	file   string
	column string
}

var builtin = map[string]source{
	"TAIEX":  {file: "TAIEX.csv.bz2", column: "avg"},
	"SP500":  {file: "SP500.csv.bz2", column: "Avg"},
	"NASDAQ": {file: "NASDAQ.csv.bz2", column: "avg"},
}

// Builtin lists the names FetchNamed accepts.
func Builtin() []string {
	return []string{"NASDAQ", "SP500", "TAIEX"}
}

// Dataset is one numeric column of a delimited file.
type Dataset struct {
	Name   string    `gorethink:"name" json:"name"`
	Column string    `gorethink:"column" json:"column"`
	Values []float64 `gorethink:"values" json:"values"`
}

func (d *Dataset) Len() int { return len(d.Values) }

type DatasetReader struct {
	logger   *zap.Logger
	client   *http.Client
	cacheDir string
	baseURL  string
}

type ReaderOption func(*DatasetReader)

// WithCacheDir keeps downloaded datasets under dir.
func WithCacheDir(dir string) ReaderOption {
	return func(r *DatasetReader) { r.cacheDir = dir }
}

func WithHTTPClient(client *http.Client) ReaderOption {
	return func(r *DatasetReader) { r.client = client }
}

func withBaseURL(url string) ReaderOption {
	return func(r *DatasetReader) { r.baseURL = url }
}

func NewDatasetReader(logger *zap.Logger, opts ...ReaderOption) *DatasetReader {
	r := &DatasetReader{
		logger:  logger,
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: datasetBaseURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read parses delimited text with a header line and returns one column.
// column is a header name or a zero-based index; it may be empty when the
// file has a single column. Comma, semicolon, tab and blank separators are
// detected from the header. Empty cells are skipped.
func (r *DatasetReader) Read(content io.Reader, column string) (*Dataset, error) {
	scanner := bufio.NewScanner(content)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, ErrInvalidFileFormat
	}
	header := strings.TrimPrefix(scanner.Text(), "\ufeff")
	split := splitter(header)

	idx, name, err := selectColumn(split(header), column)
	if err != nil {
		return nil, err
	}

	var values []float64
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := split(text)
		if idx >= len(fields) || strings.TrimSpace(fields[idx]) == "" {
			r.logger.Warn("Skipping empty cell", zap.Int("line", line), zap.String("column", name))
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidFileFormat, line, err)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			r.logger.Warn("Skipping non-finite value", zap.Int("line", line))
			continue
		}
		values = append(values, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: column %q has no values", ErrInvalidFileFormat, name)
	}

	return &Dataset{Column: name, Values: values}, nil
}

// ReadFile reads path, decompressing it when it ends in .bz2.
func (r *DatasetReader) ReadFile(path, column string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var content io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		content = bzip2.NewReader(f)
	}

	ds, err := r.Read(content, column)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	ds.Name = datasetName(path)
	r.logger.Info("Dataset loaded", zap.String("path", path), zap.String("column", ds.Column), zap.Int("length", ds.Len()))
	return ds, nil
}

// FetchNamed downloads one of the built-in datasets and reads its default
// column. With a cache directory set, the file is downloaded once.
func (r *DatasetReader) FetchNamed(ctx context.Context, name string) (*Dataset, error) {
	src, ok := builtin[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}

	dir := r.cacheDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "ftsbench-data-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	path := filepath.Join(dir, src.file)
	if _, err := os.Stat(path); err != nil {
		if err := r.download(ctx, r.baseURL+src.file, path); err != nil {
			return nil, err
		}
	} else {
		r.logger.Debug("Using cached dataset", zap.String("path", path))
	}

	ds, err := r.ReadFile(path, src.column)
	if err != nil {
		return nil, err
	}
	ds.Name = strings.ToUpper(name)
	return ds, nil
}

// Load resolves a built-in dataset name or a file path.
func (r *DatasetReader) Load(ctx context.Context, name, column string) (*Dataset, error) {
	if _, ok := builtin[strings.ToUpper(name)]; ok && column == "" {
		if _, err := os.Stat(name); err != nil {
			return r.FetchNamed(ctx, name)
		}
	}
	return r.ReadFile(name, column)
}

func (r *DatasetReader) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save %s: %w", url, err)
	}

	r.logger.Info("Dataset downloaded", zap.String("url", url), zap.Int64("bytes", n))
	return os.Rename(tmp, path)
}

func splitter(header string) func(string) []string {
	for _, sep := range []string{";", ",", "\t"} {
		if strings.Contains(header, sep) {
			return func(s string) []string { return strings.Split(s, sep) }
		}
	}
	return strings.Fields
}

func selectColumn(header []string, column string) (int, string, error) {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.Trim(strings.TrimSpace(h), `"`)
	}

	if column == "" {
		if len(names) == 1 {
			return 0, names[0], nil
		}
		return 0, "", fmt.Errorf("%w: file has %d columns, pick one", ErrColumnNotFound, len(names))
	}

	for i, n := range names {
		if n == column {
			return i, n, nil
		}
	}
	for i, n := range names {
		if strings.EqualFold(n, column) {
			return i, n, nil
		}
	}
	if i, err := strconv.Atoi(column); err == nil && i >= 0 && i < len(names) {
		return i, names[i], nil
	}
	return 0, "", fmt.Errorf("%w: %q", ErrColumnNotFound, column)
}

func datasetName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".bz2", ".csv", ".txt"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
