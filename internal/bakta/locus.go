package bakta

import "strings"

// FallbackLocusTag is used when neither the taxonomy nor the file
// identifier yields a usable tag.
const FallbackLocusTag = "BAKTA"

// DeriveLocusTag builds a locus-tag prefix from taxonomic information,
// falling back to the file identifier. The derivation is pure and
// deterministic:
//
//   - genus and species both long enough: first two letters of genus plus
//     first three of species, upper-cased ("Escherichia coli" -> "ESCOL")
//   - otherwise: the alphanumeric characters of fileID upper-cased,
//     truncated to five characters, or FallbackLocusTag if none remain
func DeriveLocusTag(genus, species, fileID string) string {
	g := []rune(genus)
	s := []rune(species)
	if len(g) >= 2 && len(s) >= 3 {
		return strings.ToUpper(string(g[:2]) + string(s[:3]))
	}

	var b strings.Builder
	for _, r := range fileID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	tag := truncate(strings.ToUpper(b.String()), 5)
	if tag == "" {
		return FallbackLocusTag
	}
	return tag
}

// DeriveLocus forms a locus identifier from a tag and a remote job ID,
// using the first eight characters of the job ID.
func DeriveLocus(tag, jobID string) string {
	return tag + "_" + truncate(jobID, 8)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
