package eggget

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	eggerrors "github.com/flaneur2020/egg-get/eggget/errors"
	"github.com/flaneur2020/egg-get/eggget/logger"
)

// ProgressCallback is called during extraction to report progress
// current: bytes written so far across all jobs
// total: sum of the declared sizes of all jobs
type ProgressCallback func(current int64, total int64)

// ExtractJob is one entry to write to disk.
type ExtractJob struct {
	Name       string
	Size       int64 // declared uncompressed size, used for progress totals
	OutputPath string
}

// ExtractOptions configures StartExtract.
type ExtractOptions struct {
	// Concurrency is the number of entries extracted at once. Values below 1
	// mean 1.
	Concurrency int
}

// ExtractStats contains statistics about an extraction
type ExtractStats struct {
	TotalFiles     int
	TotalBytes     int64
	ExtractedFiles int
	ExtractedBytes int64
	FailedFiles    int
	// Digests maps each extracted entry name to the sha256 of its content.
	Digests map[string]digest.Digest
	// Failures maps each failed entry name to the reason.
	Failures map[string]error
}

// EntryOpener opens the decompressed content of a named entry. *Archive
// implements it.
type EntryOpener interface {
	OpenEntry(name string) (io.ReadCloser, error)
}

// Extractor writes archive entries to disk.
type Extractor interface {
	// StartExtract runs every job. A failing job is recorded in the stats and
	// does not stop the others; only context cancellation aborts the run.
	StartExtract(ctx context.Context, jobs []*ExtractJob, progress ProgressCallback, opts *ExtractOptions) (*ExtractStats, error)
}

type extractor struct {
	archive EntryOpener
}

func NewExtractor(archive EntryOpener) Extractor {
	return &extractor{archive: archive}
}

func (e *extractor) StartExtract(ctx context.Context, jobs []*ExtractJob, progress ProgressCallback, opts *ExtractOptions) (*ExtractStats, error) {
	concurrency := 1
	if opts != nil && opts.Concurrency > 1 {
		concurrency = opts.Concurrency
	}

	stats := &ExtractStats{
		TotalFiles: len(jobs),
		Digests:    make(map[string]digest.Digest, len(jobs)),
		Failures:   make(map[string]error),
	}
	for _, job := range jobs {
		stats.TotalBytes += job.Size
	}
	if len(jobs) == 0 {
		return stats, nil
	}

	var (
		mu      sync.Mutex
		current int64
	)
	report := func(n int64) {
		mu.Lock()
		defer mu.Unlock()
		current += n
		if progress != nil {
			progress(current, stats.TotalBytes)
		}
	}
	report(0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			n, dgst, err := e.extractOne(gctx, job, report)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("failed to extract %s: %v", job.Name, err)
				stats.FailedFiles++
				stats.Failures[job.Name] = err
				return nil
			}
			logger.Debug("extracted %s (%d bytes, %s)", job.Name, n, dgst)
			stats.ExtractedFiles++
			stats.ExtractedBytes += n
			stats.Digests[job.Name] = dgst
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (e *extractor) extractOne(ctx context.Context, job *ExtractJob, report func(int64)) (int64, digest.Digest, error) {
	fail := func(err error) error {
		return eggerrors.ErrExtractFailed.
			WithDetail("name", job.Name).
			WithDetail("output", job.OutputPath).
			WithCause(err)
	}

	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	rc, err := e.archive.OpenEntry(job.Name)
	if err != nil {
		return 0, "", fail(err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return 0, "", fail(fmt.Errorf("failed to create directory: %w", err))
	}

	out, err := os.Create(job.OutputPath)
	if err != nil {
		return 0, "", fail(fmt.Errorf("failed to create file: %w", err))
	}

	digester := digest.Canonical.Digester()
	reader := &progressReader{ctx: ctx, reader: rc, callback: report}
	n, err := io.Copy(io.MultiWriter(out, digester.Hash()), reader)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(job.OutputPath)
		if ctx.Err() != nil {
			return n, "", ctx.Err()
		}
		return n, "", fail(err)
	}

	return n, digester.Digest(), nil
}

// progressReader wraps an io.Reader to report extraction progress
type progressReader struct {
	ctx      context.Context
	reader   io.Reader
	callback func(n int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.callback(int64(n))
	}
	return n, err
}

// PlanJobs turns the entries matched by pattern into extraction jobs under
// outputDir. A single entry matched by its exact name is written as
// outputDir/<base name>; everything else keeps its directory structure.
func PlanJobs(entries []EntryInfo, pattern, outputDir string) ([]*ExtractJob, error) {
	single := len(entries) == 1 &&
		normalizeEntryPath(strings.TrimPrefix(entries[0].Name, "/")) == normalizeEntryPath(strings.TrimPrefix(pattern, "/"))

	jobs := make([]*ExtractJob, 0, len(entries))
	for _, info := range entries {
		var (
			outputPath string
			err        error
		)
		if single {
			outputPath, err = SafeOutputPath(outputDir, path.Base(normalizeEntryPath(info.Name)))
		} else {
			outputPath, err = SafeOutputPath(outputDir, info.Name)
		}
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, &ExtractJob{
			Name:       info.Name,
			Size:       info.UncompressedSize,
			OutputPath: outputPath,
		})
	}
	return jobs, nil
}

// SafeOutputPath joins an entry name onto outputDir. Names with ".."
// components, NUL bytes or volume names are rejected; a leading slash is
// dropped.
func SafeOutputPath(outputDir, name string) (string, error) {
	insecure := eggerrors.ErrExtractFailed.
		WithMessage("insecure entry path").
		WithDetail("name", name)

	p := normalizeEntryPath(name)
	if strings.ContainsRune(p, 0) || filepath.VolumeName(p) != "" {
		return "", insecure
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", insecure
		}
	}

	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", insecure
	}
	return filepath.Join(outputDir, filepath.FromSlash(clean[1:])), nil
}
