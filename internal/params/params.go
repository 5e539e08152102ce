// Package params handles the input side of a baktarun batch: the
// per-file parameter set extracted from assemblies and metadata, and the
// replicon table describing chromosome/plasmid topology per sequence.
//
// The file formats are shared between the `extract` command (producer)
// and the `run` command (consumer):
//
//	bakta_parameters.json   fileID -> Entry
//	replicons.csv           locus,new_locus,type,topology,name
package params

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
)

// Entry holds the annotation parameters for one input FASTA file. It is
// read-only to the orchestrator.
type Entry struct {
	FastaFile    string `json:"fasta_file"`
	SequenceID   string `json:"sequence_id"`
	Length       string `json:"length,omitempty"`
	Circular     bool   `json:"circular"`
	RepliconType string `json:"replicon_type,omitempty"`
	Genus        string `json:"genus,omitempty"`
	Species      string `json:"species,omitempty"`
	Strain       string `json:"strain,omitempty"`
	Taxon        string `json:"taxon,omitempty"`
}

// Load reads a parameters JSON file keyed by file identifier.
func Load(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters file: %w", err)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse parameters file %s: %w", path, err)
	}
	return entries, nil
}

// Save writes a parameters map as indented JSON.
func Save(path string, entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write parameters file: %w", err)
	}
	return nil
}

// Replicon is one row of a Bakta replicon table.
type Replicon struct {
	Locus    string
	NewLocus string
	Type     string
	Topology string
	Name     string
}

var repliconHeader = []string{"locus", "new_locus", "type", "topology", "name"}

// LoadReplicons reads a replicon table CSV. The header row is required.
func LoadReplicons(path string) ([]Replicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replicon table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse replicon table %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]Replicon, 0, len(records)-1)
	for _, rec := range records[1:] { // skip header
		if len(rec) < 5 {
			return nil, fmt.Errorf("replicon table %s: expected 5 columns, got %d", path, len(rec))
		}
		rows = append(rows, Replicon{
			Locus:    rec[0],
			NewLocus: rec[1],
			Type:     rec[2],
			Topology: rec[3],
			Name:     rec[4],
		})
	}
	return rows, nil
}

// SubsetFor returns the replicon rows belonging to one sequence.
func SubsetFor(rows []Replicon, sequenceID string) []Replicon {
	var subset []Replicon
	for _, r := range rows {
		if r.Locus == sequenceID {
			subset = append(subset, r)
		}
	}
	return subset
}

// readCSV parses a whole CSV file, tolerating ragged rows.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// WriteReplicons writes rows as a replicon table CSV with header.
func WriteReplicons(path string, rows []Replicon) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create replicon table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(repliconHeader); err != nil {
		return fmt.Errorf("failed to write replicon table header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Locus, r.NewLocus, r.Type, r.Topology, r.Name}); err != nil {
			return fmt.Errorf("failed to write replicon row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush replicon table: %w", err)
	}
	return nil
}
