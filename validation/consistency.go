package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/internal/dateformat"
	"github.com/shandley/crucible/schema"
)

// synonymFamily groups surface forms of the same concept under a canonical
// value. The key names the group in evidence payloads.
type synonymFamily struct {
	key       string
	canonical string
	members   map[string]struct{}
}

func family(key, canonical string, members ...string) synonymFamily {
	m := make(map[string]struct{}, len(members))
	for _, v := range members {
		m[v] = struct{}{}
	}
	return synonymFamily{key: key, canonical: canonical, members: m}
}

var synonymFamilies = []synonymFamily{
	family("m", "male", "m", "male", "man"),
	family("f", "female", "f", "female", "woman"),
	family("control", "control", "control", "healthy", "normal"),
	family("stool", "stool", "stool", "feces", "fecal", "faeces", "faecal"),
	family("never", "never", "never", "non-smoker", "nonsmoker"),
	family("former", "former", "former", "ex-smoker", "past"),
	family("current", "current", "current", "smoker", "active smoker"),
}

// CaseConsistencyValidator groups values by NFC-normalized lowercase form
// (and known synonym families) and flags groups with multiple surface forms.
type CaseConsistencyValidator struct{}

func (CaseConsistencyValidator) Name() string { return "case_variant_validator" }

func (v CaseConsistencyValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if col.InferredType != schema.TypeString || col.SemanticType == schema.SemanticIdentifier {
			continue
		}

		// groupKey -> surface form -> count, insertion-ordered by group.
		groups := map[string]map[string]int{}
		canonical := map[string]string{}
		for _, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			// NFC-equal strings are the same surface form.
			surface := norm.NFC.String(strings.TrimSpace(value))
			if surface == "" {
				continue
			}
			lower := strings.ToLower(surface)
			key := lower
			for _, fam := range synonymFamilies {
				if _, ok := fam.members[lower]; ok {
					key = fam.key
					canonical[key] = fam.canonical
					break
				}
			}
			if groups[key] == nil {
				groups[key] = map[string]int{}
			}
			groups[key][surface]++
		}

		problem := map[string]map[string]int{}
		expected := map[string]string{}
		total := 0
		for key, variants := range groups {
			if len(variants) < 2 {
				continue
			}
			problem[key] = variants
			if c, ok := canonical[key]; ok {
				expected[key] = c
			} else {
				expected[key] = mostFrequentLower(variants)
			}
			for _, count := range variants {
				total += count
			}
		}
		if len(problem) == 0 {
			continue
		}

		keys := make([]string, 0, len(problem))
		for k := range problem {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		observations = append(observations, NewObservation(
			Inconsistency,
			SeverityWarning,
			col.Name,
			fmt.Sprintf("case or naming variants detected for %d value group(s): %s",
				len(problem), strings.Join(keys, ", ")),
			Evidence{
				Occurrences: total,
				Percentage:  percentage(total, table.RowCount()),
				ValueCounts: problem,
				Expected:    expected,
			},
			0.9,
			v.Name(),
		))
	}
	return observations
}

// mostFrequentLower picks the canonical value for a variant group: the
// lower-cased form with the highest aggregate count, preferring longer
// (full-word) forms on ties.
func mostFrequentLower(variants map[string]int) string {
	totals := map[string]int{}
	for surface, count := range variants {
		totals[strings.ToLower(surface)] += count
	}
	best := ""
	bestCount := -1
	for form, count := range totals {
		switch {
		case count > bestCount:
			best, bestCount = form, count
		case count == bestCount && (len(form) > len(best) || (len(form) == len(best) && form < best)):
			best = form
		}
	}
	return best
}

// TypoValidator flags rare values one edit away from a frequent value with
// the same leading character.
type TypoValidator struct{}

func (TypoValidator) Name() string { return "typo_validator" }

func (v TypoValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if col.InferredType != schema.TypeString || col.SemanticType == schema.SemanticIdentifier ||
			col.SemanticRole == schema.RoleSampleID {
			continue
		}

		counts := map[string]int{}
		var order []string
		for _, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				continue
			}
			if counts[trimmed] == 0 {
				order = append(order, trimmed)
			}
			counts[trimmed]++
		}

		var frequent []string
		for _, value := range order {
			if counts[value] > 1 {
				frequent = append(frequent, value)
			}
		}

		typoMap := map[string]string{}
		typoCounts := map[string]int{}
		for _, rare := range order {
			if counts[rare] != 1 || len(rare) < 3 {
				continue
			}
			for _, common := range frequent {
				if rare[0] != common[0] && !strings.EqualFold(rare[:1], common[:1]) {
					continue
				}
				if d := editDistance(rare, common); d == 1 {
					typoMap[rare] = common
					typoCounts[rare] = counts[rare]
					break
				}
			}
		}
		if len(typoMap) == 0 {
			continue
		}

		total := 0
		for _, c := range typoCounts {
			total += c
		}
		pairs := make([]string, 0, len(typoMap))
		keys := make([]string, 0, len(typoMap))
		for k := range typoMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%q -> %q", k, typoMap[k]))
		}

		observations = append(observations, NewObservation(
			Inconsistency,
			SeverityWarning,
			col.Name,
			fmt.Sprintf("%d potential typo(s) detected: %s", len(typoMap), strings.Join(pairs, ", ")),
			Evidence{
				Occurrences: total,
				Percentage:  percentage(total, table.RowCount()),
				ValueCounts: typoCounts,
				Expected:    typoMap,
				Pattern:     "edit_distance_1",
			},
			0.75,
			v.Name(),
		))
	}
	return observations
}

// booleanTrue / booleanFalse are the recognized surface families.
var booleanTrue = map[string]struct{}{"true": {}, "t": {}, "yes": {}, "y": {}, "1": {}}
var booleanFalse = map[string]struct{}{"false": {}, "f": {}, "no": {}, "n": {}, "0": {}}

// BooleanConsistencyValidator flags boolean columns mixing surface families
// (e.g. yes/no alongside TRUE/FALSE).
type BooleanConsistencyValidator struct{}

func (BooleanConsistencyValidator) Name() string { return "boolean_consistency_validator" }

func (v BooleanConsistencyValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if col.InferredType != schema.TypeBoolean {
			continue
		}

		surfaces := map[string]int{}
		for _, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				surfaces[trimmed]++
			}
		}
		if len(surfaces) <= 2 && surfacesShareStyle(surfaces) {
			continue
		}

		expected := map[string]string{}
		total := 0
		for surface, count := range surfaces {
			lower := strings.ToLower(surface)
			if _, ok := booleanTrue[lower]; ok {
				if surface != "true" {
					expected[surface] = "true"
				}
			} else if _, ok := booleanFalse[lower]; ok {
				if surface != "false" {
					expected[surface] = "false"
				}
			}
			total += count
		}

		observations = append(observations, NewObservation(
			Inconsistency,
			SeverityWarning,
			col.Name,
			fmt.Sprintf("mixed boolean representations: %s", previewKeys(surfaces, 5)),
			Evidence{
				Occurrences: total,
				Percentage:  percentage(total, table.RowCount()),
				ValueCounts: surfaces,
				Expected:    expected,
				Pattern:     "boolean_variants",
			},
			0.92,
			v.Name(),
		))
	}
	return observations
}

// surfacesShareStyle reports whether all boolean surfaces come from one
// consistent pair (e.g. exactly true/false or yes/no in a single casing).
func surfacesShareStyle(surfaces map[string]int) bool {
	pairs := [][2]string{{"true", "false"}, {"yes", "no"}, {"t", "f"}, {"y", "n"}, {"1", "0"}}
	for _, pair := range pairs {
		matched := 0
		for surface := range surfaces {
			lower := strings.ToLower(surface)
			if lower == pair[0] || lower == pair[1] {
				matched++
			}
		}
		if matched == len(surfaces) {
			// Same pair; still require consistent casing.
			casings := map[string]struct{}{}
			for surface := range surfaces {
				casings[casingOf(surface)] = struct{}{}
			}
			return len(casings) <= 1
		}
	}
	return false
}

func casingOf(s string) string {
	switch {
	case s == strings.ToLower(s):
		return "lower"
	case s == strings.ToUpper(s):
		return "upper"
	default:
		return "title"
	}
}

// DateConsistencyValidator flags date columns parsing against more than one
// recognized format family.
type DateConsistencyValidator struct{}

func (DateConsistencyValidator) Name() string { return "date_format_validator" }

func (v DateConsistencyValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if !col.InferredType.IsTemporal() {
			continue
		}

		familyCounts := map[string]int{}
		familyRows := map[string][]int{}
		for rowIdx, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			if f := dateformat.Detect(value); f != "" {
				desc := f.Description()
				familyCounts[desc]++
				if len(familyRows[desc]) < maxSampleRows {
					familyRows[desc] = append(familyRows[desc], rowIdx)
				}
			}
		}
		if len(familyCounts) <= 1 {
			continue
		}

		// Rows outside the dominant family are the ones a fix would touch.
		dominant := ""
		dominantCount := -1
		for desc, count := range familyCounts {
			if count > dominantCount || (count == dominantCount && desc < dominant) {
				dominant, dominantCount = desc, count
			}
		}
		total := 0
		var rows []int
		for desc, count := range familyCounts {
			total += count
			if desc != dominant {
				rows = append(rows, familyRows[desc]...)
			}
		}
		sort.Ints(rows)
		if len(rows) > maxSampleRows {
			rows = rows[:maxSampleRows]
		}

		descs := make([]string, 0, len(familyCounts))
		for desc := range familyCounts {
			descs = append(descs, desc)
		}
		sort.Strings(descs)

		observations = append(observations, NewObservation(
			Inconsistency,
			SeverityWarning,
			col.Name,
			fmt.Sprintf("mixed date formats detected (%s); recommend standardizing to ISO (YYYY-MM-DD)",
				strings.Join(descs, "; ")),
			Evidence{
				Occurrences: total,
				Percentage:  percentage(total, table.RowCount()),
				SampleRows:  rows,
				ValueCounts: familyCounts,
				Pattern:     "date_formats",
			},
			0.9,
			v.Name(),
		))
	}
	return observations
}

// editDistance is the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

var (
	patternCache   = map[string]*regexp.Regexp{}
	patternCacheMu sync.Mutex
)

// compilePattern compiles with a small cache; validators may run in
// parallel.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	patternCacheMu.Lock()
	defer patternCacheMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache[pattern] = re
	return re, nil
}
