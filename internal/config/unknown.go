package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"oauth":   {"authority_url", "client_id", "client_secret", "redirect_url", "scopes", "tenant"},
	"graph":   {"base_url", "client_sku"},
	"server":  {"listen_addr", "max_sessions", "pending_session_ttl", "secure_cookies", "session_max_age", "shutdown_timeout"},
	"mail":    {"link_type", "photo_dir", "save_to_sent_items", "template", "upload_folder"},
	"history": {"db_path", "enabled"},
	"logging": {"log_format", "log_level"},
	"network": {"timeout"},
}

// knownSections is the sorted list of section names, for deterministic
// suggestions when two candidates have the same edit distance.
var knownSections = func() []string {
	out := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, unknownKeyError(key.String()))
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key, suggesting the closest known
// section or key.
func unknownKeyError(keyStr string) error {
	section, field, nested := strings.Cut(keyStr, ".")

	keys, sectionKnown := knownKeys[section]
	if !sectionKnown {
		if suggestion := closestMatch(section, knownSections); suggestion != "" {
			return fmt.Errorf("config: unknown section %q, did you mean %q?", section, suggestion)
		}

		return fmt.Errorf("config: unknown section %q", section)
	}

	if !nested {
		return fmt.Errorf("config: %q must be a section", section)
	}

	if suggestion := closestMatch(field, keys); suggestion != "" {
		return fmt.Errorf("config: unknown key %q in [%s], did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("config: unknown key %q in [%s]", field, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
