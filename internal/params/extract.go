package params

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FastaInfo is the metadata extracted from one assembly's first FASTA
// header, e.g. ">RHB01-C04_1 1 length=4843636 depth=1.00x circular=true".
type FastaInfo struct {
	Path       string
	Filename   string
	SequenceID string
	Length     string
	Depth      string
	Circular   bool
}

// FileID returns the stable identifier used to key the parameter set:
// the file name without its .fasta extension.
func (i FastaInfo) FileID() string {
	return strings.TrimSuffix(i.Filename, ".fasta")
}

// ParseFastaHeader parses a FASTA header line into its sequence ID and
// key=value attributes.
func ParseFastaHeader(line string) FastaInfo {
	var info FastaInfo

	parts := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), ">"))
	if len(parts) > 0 {
		info.SequenceID = parts[0]
	}
	for _, part := range parts {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch key {
		case "length":
			info.Length = value
		case "depth":
			info.Depth = value
		case "circular":
			info.Circular = strings.EqualFold(value, "true")
		}
	}
	return info
}

// ExtractFastaInfo reads the first header line of a FASTA file. A file
// without a header still yields an info with the filename-derived
// sequence ID so it is never dropped from the run.
func ExtractFastaInfo(path string) (FastaInfo, error) {
	info := FastaInfo{Path: path, Filename: filepath.Base(path)}

	f, err := os.Open(path)
	if err != nil {
		return info, fmt.Errorf("failed to open FASTA %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, ">") {
			parsed := ParseFastaHeader(line)
			parsed.Path = info.Path
			parsed.Filename = info.Filename
			info = parsed
		}
	}
	if err := scanner.Err(); err != nil {
		return info, fmt.Errorf("failed to read FASTA %s: %w", path, err)
	}

	if info.SequenceID == "" {
		info.SequenceID = info.FileID()
	}
	return info, nil
}

// MetadataRow is one assembly's row from the metadata CSV. Only the
// columns the extraction consumes are kept.
type MetadataRow struct {
	Contig string
	Type   string
	Taxon  string // mlst.PubMLST column
}

// LoadMetadata reads the metadata CSV, locating the Contig, Type and
// mlst.PubMLST columns by header name.
func LoadMetadata(path string) ([]MetadataRow, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("metadata file %s is empty", path)
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[name] = i
	}
	contigIdx, ok := col["Contig"]
	if !ok {
		return nil, fmt.Errorf("metadata file %s has no Contig column", path)
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		v := rec[i]
		if v == "nan" {
			return ""
		}
		return v
	}

	rows := make([]MetadataRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if contigIdx >= len(rec) {
			continue
		}
		rows = append(rows, MetadataRow{
			Contig: rec[contigIdx],
			Type:   field(rec, "Type"),
			Taxon:  field(rec, "mlst.PubMLST"),
		})
	}
	return rows, nil
}

// MatchMetadata finds the metadata row for a file identifier: exact Contig
// match first, then a relaxed match on the identifier's first underscore
// segment.
func MatchMetadata(rows []MetadataRow, fileID string) *MetadataRow {
	for i := range rows {
		if rows[i].Contig == fileID {
			return &rows[i]
		}
	}
	prefix, _, _ := strings.Cut(fileID, "_")
	if prefix == "" {
		return nil
	}
	for i := range rows {
		if strings.Contains(rows[i].Contig, prefix) {
			return &rows[i]
		}
	}
	return nil
}

// taxonNames maps known MLST scheme codes to genus/species.
var taxonNames = map[string]struct{ Genus, Species string }{
	"ecoli":    {"Escherichia", "coli"},
	"koxytoca": {"Klebsiella", "oxytoca"},
}

// BuildParameters joins extracted FASTA infos with metadata rows into the
// parameter set consumed by the run command.
func BuildParameters(infos []FastaInfo, metadata []MetadataRow) map[string]Entry {
	entries := make(map[string]Entry, len(infos))
	for _, info := range infos {
		entry := Entry{
			FastaFile:  info.Path,
			SequenceID: info.SequenceID,
			Length:     info.Length,
			Circular:   info.Circular,
		}

		if row := MatchMetadata(metadata, info.FileID()); row != nil {
			entry.Taxon = row.Taxon
			if row.Type != "" {
				entry.RepliconType = row.Type
			}
			if names, ok := taxonNames[row.Taxon]; ok {
				entry.Genus = names.Genus
				entry.Species = names.Species
			}
		}
		if entry.RepliconType == "" {
			entry.RepliconType = "Unknown"
		}

		entries[info.FileID()] = entry
	}
	return entries
}

// BuildReplicons derives the Bakta replicon table from extracted FASTA
// infos and metadata rows.
func BuildReplicons(infos []FastaInfo, metadata []MetadataRow) []Replicon {
	rows := make([]Replicon, 0, len(infos))
	for _, info := range infos {
		repliconType := "contig"
		name := info.SequenceID

		if row := MatchMetadata(metadata, info.FileID()); row != nil {
			switch {
			case strings.Contains(strings.ToLower(row.Type), "chromosome"):
				repliconType = "chromosome"
			case strings.Contains(strings.ToLower(row.Type), "plasmid"):
				repliconType = "plasmid"
			}
			if row.Taxon != "" {
				name = row.Taxon + "_" + info.SequenceID
			}
		}

		topology := "linear"
		if info.Circular {
			topology = "circular"
		}

		rows = append(rows, Replicon{
			Locus:    info.SequenceID,
			NewLocus: info.SequenceID,
			Type:     repliconType,
			Topology: topology,
			Name:     name,
		})
	}
	return rows
}

// WriteExtractionSummary writes a text summary of an extraction run:
// totals plus replicon type, topology and taxon distributions.
func WriteExtractionSummary(path string, entries map[string]Entry, replicons []Replicon, metadataRows int) error {
	var b strings.Builder
	b.WriteString("BAKTA PARAMETER EXTRACTION SUMMARY\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Total FASTA files processed: %d\n", len(entries))
	fmt.Fprintf(&b, "Metadata entries: %d\n\n", metadataRows)

	typeCounts := map[string]int{}
	topoCounts := map[string]int{}
	for _, r := range replicons {
		typeCounts[r.Type]++
		topoCounts[r.Topology]++
	}
	taxonCounts := map[string]int{}
	for _, e := range entries {
		taxon := e.Taxon
		if taxon == "" {
			taxon = "Unknown"
		}
		taxonCounts[taxon]++
	}

	writeCounts := func(title string, counts map[string]int) {
		b.WriteString(title + ":\n")
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %d\n", k, counts[k])
		}
		b.WriteString("\n")
	}
	writeCounts("Replicon types", typeCounts)
	writeCounts("Topology distribution", topoCounts)
	writeCounts("Taxon distribution", taxonCounts)

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write extraction summary: %w", err)
	}
	return nil
}
