package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/flaneur2020/egg-get/eggget"
	"github.com/flaneur2020/egg-get/eggget/eggutil"
	"github.com/flaneur2020/egg-get/eggget/logger"
	"github.com/flaneur2020/egg-get/eggget/report"
)

type rootOptions struct {
	logLevel       string
	skipEndMarkers bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "eggget",
		Short:        "A CLI tool for reading EGG archives",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logger.ParseLogLevel(opts.logLevel)
			if err != nil {
				return err
			}
			logger.SetLogLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "Log level: silent, error, warn, info or debug")
	rootCmd.PersistentFlags().BoolVar(&opts.skipEndMarkers, "skip-end-markers", false, "Treat End chunks as header group separators and read to the end of the file. Archives that close every header group with an End chunk list nothing without it")

	rootCmd.AddCommand(
		newLsCmd(opts),
		newGetCmd(opts),
		newChunksCmd(opts),
		newReportCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) open(path string) (*eggget.Archive, error) {
	return eggget.OpenWithOptions(path, eggget.Options{SkipEndMarkers: o.skipEndMarkers})
}

func newLsCmd(opts *rootOptions) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls <ARCHIVE>",
		Short: "List entries in an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			if long {
				if err := listLong(cmd.OutOrStdout(), a); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for name, err := range a.Entries() {
					if err != nil {
						return err
					}
					fmt.Fprintln(out, name)
				}
			}
			warnUnread(cmd.ErrOrStderr(), opts, a)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show method, sizes and a sha256 digest of each entry")
	return cmd
}

func listLong(w io.Writer, a *eggget.Archive) error {
	infos, err := a.EntryInfos()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "METHOD\tSIZE\tPACKED\tDIGEST\tNAME")
	for _, info := range infos {
		dgst := "-"
		if d, digestErr := entryDigest(a, info); digestErr == nil {
			dgst = d.String()
		} else {
			logger.Warn("failed to read %s: %v", info.Name, digestErr)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			info.Method,
			humanize.IBytes(uint64(info.UncompressedSize)),
			humanize.IBytes(uint64(info.CompressedSize)),
			dgst,
			info.Name)
	}
	return err
}

func entryDigest(a *eggget.Archive, info eggget.EntryInfo) (digest.Digest, error) {
	rc, err := a.OpenEntryInfo(info)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	digester := digest.Canonical.Digester()
	if _, err := io.Copy(digester.Hash(), rc); err != nil {
		return "", err
	}
	return digester.Digest(), nil
}

// warnUnread tells the user when an End chunk stopped the walk early.
func warnUnread(w io.Writer, opts *rootOptions, a *eggget.Archive) {
	if opts.skipEndMarkers {
		return
	}
	end, err := a.WalkEnd()
	if err != nil || end >= a.Size() {
		return
	}
	fmt.Fprintf(w, "warning: %s: walk stopped at an End chunk with %d of %d bytes unread; retry with --skip-end-markers\n",
		a.Path(), a.Size()-end, a.Size())
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	var (
		noProgress bool
		jobs       int
	)

	cmd := &cobra.Command{
		Use:   "get <ARCHIVE> <PATH> [OUTPUT_DIR]",
		Short: "Extract an entry or directory from an archive. Use '.' or '/' for all entries",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pathPattern := args[1]
			outputDir := "."
			if len(args) > 2 {
				outputDir = args[2]
			}
			if pathPattern == "*" {
				pathPattern = "."
			}

			a, err := opts.open(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			index, err := eggget.LoadIndex(a)
			if err != nil {
				return err
			}

			matched := index.FilterEntries(pathPattern)
			if len(matched) == 0 {
				return fmt.Errorf("no entries matched pattern: %s", pathPattern)
			}

			extractJobs, err := eggget.PlanJobs(matched, pathPattern, outputDir)
			if err != nil {
				return err
			}

			var progress eggget.ProgressCallback
			var bar *progressbar.ProgressBar
			if !noProgress {
				progress = func(current, total int64) {
					if bar == nil && total > 0 {
						desc := fmt.Sprintf("Extracting %d files", len(extractJobs))
						if len(extractJobs) == 1 {
							desc = fmt.Sprintf("Extracting %s", extractJobs[0].Name)
						}
						bar = newProgressBar(cmd.ErrOrStderr(), total, desc)
					}
					if bar != nil {
						bar.Set64(current)
					}
				}
			}

			stats, err := eggget.NewExtractor(a).StartExtract(cmd.Context(), extractJobs, progress, &eggget.ExtractOptions{Concurrency: jobs})
			if bar != nil {
				bar.Finish()
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Successfully extracted %d/%d files (%s total)",
				stats.ExtractedFiles, stats.TotalFiles, humanize.IBytes(uint64(stats.ExtractedBytes)))
			if stats.FailedFiles > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (%d failed)\n", stats.FailedFiles)
				return fmt.Errorf("%d of %d entries failed to extract", stats.FailedFiles, stats.TotalFiles)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bar (progress is enabled by default)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Number of entries extracted in parallel")
	return cmd
}

func newProgressBar(w io.Writer, total int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func newChunksCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <ARCHIVE>",
		Short: "Dump every chunk of an archive in file order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			fmt.Fprintln(tw, "OFFSET\tKIND\tLENGTH\tDETAIL")
			for c, err := range a.Chunks() {
				if err != nil {
					tw.Flush()
					return err
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", c.Offset, c.Kind, c.Length, chunkDetail(c))
			}
			return nil
		},
	}
}

func chunkDetail(c eggutil.Chunk) string {
	switch c.Kind {
	case eggutil.KindArchiveHeader:
		return fmt.Sprintf("version=%#04x id=%#08x", c.Version, c.HeaderID)
	case eggutil.KindFilename:
		return c.Name
	case eggutil.KindBlockHeader:
		return fmt.Sprintf("method=%s size=%d packed=%d crc=%08x", c.Method, c.UncompressedSize, c.CompressedSize, c.CRC)
	case eggutil.KindEncryptHeader:
		return fmt.Sprintf("method=%d", c.EncryptMethod)
	}
	return ""
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		format    string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "report <ARCHIVE>...",
		Short: "Write a file list report for each archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			for _, archivePath := range args {
				path, err := writeReport(cmd.Context(), cmd.ErrOrStderr(), opts, archivePath, outputDir, f)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(report.FormatXLSX), "Report format: xlsx or csv")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory the reports are written to")
	return cmd
}

func writeReport(ctx context.Context, stderr io.Writer, opts *rootOptions, archivePath, outputDir string, format report.Format) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	a, err := opts.open(archivePath)
	if err != nil {
		return "", err
	}
	defer a.Close()

	names, err := a.ListEntries()
	if err != nil {
		return "", err
	}
	warnUnread(stderr, opts, a)

	path := filepath.Join(outputDir, report.DefaultFileName(archivePath, format))
	if err := report.WriteFile(path, format, report.Rows(archivePath, names)); err != nil {
		return "", err
	}
	return path, nil
}
