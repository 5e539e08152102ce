// cmd/extract.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/seqlab-io/baktarun/internal/params"
)

var (
	assembliesDir string
	metadataFile  string
	extractOutDir string
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Build the parameter set from FASTA assemblies and metadata",
	Long: `Scans a directory of FASTA assemblies, reads topology and length from
each file's first header, joins taxonomic information from a metadata CSV,
and writes the three artifacts the run command consumes:

  bakta_parameters.json    per-file annotation parameters
  replicons.csv            Bakta replicon table
  extraction_summary.txt   counts by replicon type, topology and taxon`,
	Example: `  baktarun extract --assemblies-dir ./assemblies --metadata metadata_updated.csv`,
	Run: func(cmd *cobra.Command, args []string) {
		runExtract()
	},
}

func runExtract() {
	fastaFiles, err := filepath.Glob(filepath.Join(assembliesDir, "*.fasta"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to scan assemblies directory: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(fastaFiles)
	if len(fastaFiles) == 0 {
		fmt.Fprintf(os.Stderr, "❌ No FASTA files found in %s\n", assembliesDir)
		os.Exit(1)
	}
	fmt.Printf("Found %d FASTA files\n", len(fastaFiles))

	var metadata []params.MetadataRow
	if metadataFile != "" {
		metadata, err = params.LoadMetadata(metadataFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Could not load metadata, continuing without it: %v\n", err)
		} else {
			fmt.Printf("Loaded metadata with %d rows\n", len(metadata))
		}
	}

	infos := make([]params.FastaInfo, 0, len(fastaFiles))
	for _, path := range fastaFiles {
		info, err := params.ExtractFastaInfo(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
		}
		infos = append(infos, info)
	}

	if err := os.MkdirAll(extractOutDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	replicons := params.BuildReplicons(infos, metadata)
	repliconPath := filepath.Join(extractOutDir, "replicons.csv")
	if err := params.WriteReplicons(repliconPath, replicons); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	entries := params.BuildParameters(infos, metadata)
	paramsPath := filepath.Join(extractOutDir, "bakta_parameters.json")
	if err := params.Save(paramsPath, entries); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	summaryPath := filepath.Join(extractOutDir, "extraction_summary.txt")
	if err := params.WriteExtractionSummary(summaryPath, entries, replicons, len(metadata)); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Parameter extraction complete:")
	fmt.Printf("   - Parameters JSON: %s\n", paramsPath)
	fmt.Printf("   - Replicon table:  %s\n", repliconPath)
	fmt.Printf("   - Summary:         %s\n", summaryPath)
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&assembliesDir, "assemblies-dir", ".", "Directory containing .fasta assemblies")
	extractCmd.Flags().StringVar(&metadataFile, "metadata", "metadata_updated.csv", "Metadata CSV with Contig, Type and mlst.PubMLST columns")
	extractCmd.Flags().StringVar(&extractOutDir, "out-dir", "bakta_params", "Output directory for the extracted parameter set")
}
