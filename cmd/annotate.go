package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Patch-Manager/tarmac-annotate/pkg/csource"
	"github.com/Patch-Manager/tarmac-annotate/pkg/listing"
	"github.com/Patch-Manager/tarmac-annotate/pkg/tarmac"
)

var (
	annotatePath   string
	annotateTag    string
	annotateTicket string
	annotateVars   string
	annotateStack  bool
	annotateSource bool
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <tarmac-file> [listing-file] [output-file]",
	Short: "Annotate a tarmac trace file",
	Long: `Reads a tarmac trace line by line and writes an annotated copy with
function entry/exit banners, an abbreviated call tree, recovered C
prototypes, and named variable/register accesses.

The listing file defaults to the project assembly listing next to the
tarmac file, or the first listing found by convention. The output file
defaults to the tarmac file name with a timestamp suffix.

Example:
  tarmac-annotate annotate 20250814/tarmac.log --tag Tag_01.02.03 --stack`,
	Args: cobra.RangeArgs(1, 3),
	Run:  runAnnotate,
}

func init() {
	RootCmd.AddCommand(annotateCmd)

	annotateCmd.Flags().StringVarP(&annotatePath, "path", "p", "", "Path to the C source files for prototype annotation")
	annotateCmd.Flags().StringVar(&annotateTag, "tag", "", "SVN tag to append to the tags root, e.g. Tag_01.02.03")
	annotateCmd.Flags().StringVar(&annotateTicket, "ticket", "", "Ticket ID to append to the source root")
	annotateCmd.Flags().StringVar(&annotateVars, "vars", "", "YAML file naming memory-mapped variables and registers")
	annotateCmd.Flags().BoolVar(&annotateStack, "stack", false, "Also generate a stack trace file")
	annotateCmd.Flags().BoolVar(&annotateSource, "source", false, "Add assembly source annotation to reduced-information records")
}

func runAnnotate(cmd *cobra.Command, args []string) {
	tarmacPath := args[0]

	if !isFile(tarmacPath) {
		colorError.Fprintf(os.Stderr, "Error: tarmac file not found - %s\n\n", tarmacPath)
		cmd.Usage()
		os.Exit(1)
	}

	sourceRoot := resolveSourceRoot(annotatePath, annotateTag, annotateTicket)

	listingPath := ""
	if len(args) > 1 {
		listingPath = args[1]
	} else {
		listingPath = discoverListing(tarmacPath, sourceRoot, annotateTag != "" || annotateTicket != "")
	}

	if !isFile(listingPath) {
		colorError.Fprintf(os.Stderr, "Error: list file not found - %s\n\n", listingPath)
		cmd.Usage()
		os.Exit(1)
	}

	outputPath := ""
	if len(args) > 2 {
		outputPath = args[2]
	} else {
		outputPath = timestampedName(tarmacPath)
	}

	colorInfo.Printf("tarmac file  = %s\n", tarmacPath)
	colorInfo.Printf("list file    = %s\n", listingPath)
	colorInfo.Printf("output file  = %s\n", outputPath)
	if sourceRoot != "" {
		colorInfo.Printf("source path  = %s\n", sourceRoot)
	}

	stackPath := ""
	if annotateStack {
		stackPath = stackName(tarmacPath)
		colorInfo.Printf("stack file   = %s\n", stackPath)
	}

	// The table builders are independent of each other; only the engine
	// needs all of them.
	var (
		wg         sync.WaitGroup
		symbols    *listing.SymbolTable
		source     listing.SourceIndex
		listingErr error
		signatures csource.Table
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		symbols, source, listingErr = listing.ParseFile(listingPath)
	}()

	go func() {
		defer wg.Done()
		signatures = buildSignatures(sourceRoot)
	}()

	variables, err := buildVarDict(annotateVars)
	if err != nil {
		colorError.Fprintf(os.Stderr, "Error loading variable dictionary: %v\n", err)
		os.Exit(2)
	}

	wg.Wait()

	if listingErr != nil {
		colorError.Fprintf(os.Stderr, "Error parsing list file: %v\n", listingErr)
		os.Exit(2)
	}

	slog.Debug("tables built",
		"functions", symbols.Len(),
		"source_lines", len(source),
		"prototypes", len(signatures),
		"variables", len(variables))

	in, err := os.Open(tarmacPath)
	if err != nil {
		colorError.Fprintf(os.Stderr, "Error opening tarmac file: %v\n", err)
		os.Exit(2)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		colorError.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(2)
	}
	defer out.Close()

	var stackWriter io.Writer
	if annotateStack {
		stackFile, err := os.Create(stackPath)
		if err != nil {
			colorError.Fprintf(os.Stderr, "Error creating stack file: %v\n", err)
			os.Exit(2)
		}
		defer stackFile.Close()
		stackWriter = stackFile
	}

	progress := newDotter(os.Stderr)

	engine := tarmac.New(tarmac.Options{
		Symbols:          symbols,
		Source:           source,
		Signatures:       signatures,
		Variables:        variables,
		AnnotateSource:   annotateSource,
		StackWriter:      stackWriter,
		WFILeafRoutines:  viper.GetStringSlice("annotate.wfi_leaf_routines"),
		Progress:         progress.tick,
		ProgressInterval: viper.GetInt("annotate.progress_interval"),
		Logger:           slog.Default(),
	})

	summary, err := engine.Run(in, out)
	progress.finish()

	if err != nil {
		colorError.Fprintf(os.Stderr, "Error annotating tarmac file: %v\n", err)
		os.Exit(2)
	}

	printSummary(summary)
}

func printSummary(summary tarmac.Summary) {
	fmt.Println()
	fmt.Printf("Number of functions from list file          = %d\n", summary.FunctionsKnown)
	fmt.Printf("Number of functions executed in tarmac file = %d\n", summary.FunctionsExecuted)
	fmt.Printf("Missing function name count                 = %d\n", summary.SymbolsMissing)

	if summary.SymbolsMissing > viper.GetInt("annotate.missing_symbol_warn_threshold") {
		colorWarning.Println("A large number of missing function names may mean the tarmac file and the list file are not in sync.")
		colorWarning.Println("A number of functions were executed in the tarmac file that were not found in the list of functions.")
		colorWarning.Println("Note: only functions executed with PUSH are identified as executed functions.")
	}
}

// buildSignatures scans the resolved source root for C prototypes. Best
// effort: a missing or empty root just means no prototype annotations.
func buildSignatures(sourceRoot string) csource.Table {
	if sourceRoot == "" {
		return nil
	}

	if info, err := os.Stat(sourceRoot); err != nil || !info.IsDir() {
		slog.Warn("source path not found, skipping prototype annotation", "path", sourceRoot)
		return nil
	}

	return csource.Scan(sourceRoot, csource.Options{
		Extension:      viper.GetString("source.extension"),
		ExcludeMarkers: viper.GetStringSlice("source.exclude_markers"),
	})
}

// buildVarDict merges the configured variables map with an optional
// dictionary file, file entries winning.
func buildVarDict(varsPath string) (tarmac.VarDict, error) {
	dict := tarmac.NewVarDict(viper.GetStringMapString("variables"))

	if varsPath != "" {
		fromFile, err := tarmac.LoadVarDict(varsPath)
		if err != nil {
			return nil, err
		}
		dict.Merge(fromFile)
	}

	return dict, nil
}

// resolveSourceRoot picks the C source tree: an explicit path wins, then a
// tag under the tags root, then a ticket under the source root, then the
// configured source root itself.
func resolveSourceRoot(path, tag, ticket string) string {
	switch {
	case path != "":
		return path
	case tag != "":
		return filepath.Join(viper.GetString("paths.tags_root"), tag)
	case ticket != "":
		return filepath.Join(viper.GetString("paths.source_root"), ticket)
	default:
		return viper.GetString("paths.source_root")
	}
}

// discoverListing finds the listing by convention: the default assembly
// listing next to the tarmac file, else the first listing-extension file
// there, else (when a tag or ticket names a release) the first listing in
// the release info folder.
func discoverListing(tarmacPath, sourceRoot string, haveRelease bool) string {
	dir := filepath.Dir(tarmacPath)
	ext := viper.GetString("listing.extension")

	candidate := filepath.Join(dir, viper.GetString("listing.default_name")+ext)
	if isFile(candidate) {
		return candidate
	}

	if matches, _ := filepath.Glob(filepath.Join(dir, "*"+ext)); len(matches) > 0 {
		return matches[0]
	}

	if haveRelease && sourceRoot != "" {
		infoGlob := filepath.Join(sourceRoot, viper.GetString("paths.info_subdir"), "*"+ext)
		if matches, _ := filepath.Glob(infoGlob); len(matches) > 0 {
			return matches[0]
		}
	}

	return candidate
}

// timestampedName derives the default output name from the tarmac name,
// e.g. tarmac.log -> tarmac-update-20250830-141502.log.
func timestampedName(tarmacPath string) string {
	ext := filepath.Ext(tarmacPath)
	stamp := time.Now().Format("20060102-150405")
	return strings.TrimSuffix(tarmacPath, ext) + "-update-" + stamp + ext
}

// stackName derives the stack trace file name, e.g. tarmac.log -> tarmac-stack.log.
func stackName(tarmacPath string) string {
	ext := filepath.Ext(tarmacPath)
	return strings.TrimSuffix(tarmacPath, ext) + "-stack" + ext
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dotter prints a progress dot per interval on longer traces, wrapping the
// dot line at 70 columns.
type dotter struct {
	w       io.Writer
	started bool
	dots    int
}

func newDotter(w io.Writer) *dotter {
	return &dotter{w: w}
}

func (d *dotter) tick(int) {
	if !d.started {
		fmt.Fprint(d.w, "Processing...")
		d.started = true
	}

	fmt.Fprint(d.w, ".")
	d.dots++

	if d.dots%70 == 0 {
		fmt.Fprintln(d.w)
	}
}

func (d *dotter) finish() {
	if d.started {
		fmt.Fprintln(d.w)
	}
}
