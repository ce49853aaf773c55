package inference

import (
	"regexp"
	"strings"

	"github.com/shandley/crucible/schema"
)

// semanticSampleSize is the maximum number of non-null cells inspected.
const semanticSampleSize = 200

// SemanticAnalysis holds hints derived from the column name and value shapes.
type SemanticAnalysis struct {
	SemanticRole   schema.SemanticRole
	RoleConfidence float64
	ValuePattern   string
	DetectedFormat string
	Constraints    []schema.Constraint
	Confidence     float64
	NameTokens     []string
}

// rolePattern maps a header regex to a role prior.
type rolePattern struct {
	re   *regexp.Regexp
	role schema.SemanticRole
}

var rolePatterns = []rolePattern{
	{regexp.MustCompile(`(?i)^(id|identifier|key|uuid|guid)$|_id$|^id_`), schema.RoleSampleID},
	{regexp.MustCompile(`(?i)(sample[_\s]?id|patient[_\s]?id|subject[_\s]?id|record[_\s]?id|accession)`), schema.RoleSampleID},
	{regexp.MustCompile(`(?i)(group|category|class|cohort|arm|status|state|phase)`), schema.RoleGroupingVar},
	{regexp.MustCompile(`(?i)(diagnosis|treatment|condition|sex|gender|race|ethnicity)`), schema.RoleGroupingVar},
	{regexp.MustCompile(`(?i)(age|weight|height|bmi|score|level|dose)`), schema.RoleCovariate},
	{regexp.MustCompile(`(?i)(count|number|amount|quantity|ratio|rate|percent|proportion)`), schema.RoleCovariate},
	{regexp.MustCompile(`(?i)(outcome|result|response|endpoint|survival|relapse|recurrence)`), schema.RoleOutcome},
	{regexp.MustCompile(`(?i)(date|time|timestamp|batch|run|lane|plate|instrument|version)`), schema.RoleTechnical},
	{regexp.MustCompile(`(?i)(file|source|origin|created|updated|modified)`), schema.RoleTechnical},
	{regexp.MustCompile(`(?i)(note|comment|description|remark|operator|entered_by)`), schema.RoleAdministrative},
}

// formatPattern maps a value regex to a known template name.
type formatPattern struct {
	re   *regexp.Regexp
	name string
}

var formatPatterns = []formatPattern{
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "iso_date"},
	{regexp.MustCompile(`^-?\d{1,3}\.\d{3,}$`), "decimal_coordinate"},
	{regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`), "uuid"},
	{regexp.MustCompile(`^(sha256:)?[0-9a-fA-F]{40,64}$`), "sha_digest"},
	{regexp.MustCompile(`^[A-Za-z]{2,6}[_-]?\d{2,}$`), "alphanumeric_id"},
	{regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`), "email"},
	{regexp.MustCompile(`^https?://\S+$`), "url"},
}

// formatMatchThreshold is the fraction of samples a template must match.
const formatMatchThreshold = 0.9

// SemanticAnalyzer infers role and format hints from names and samples.
type SemanticAnalyzer struct{}

// NewSemanticAnalyzer creates a semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{}
}

// AnalyzeColumn inspects the header and up to semanticSampleSize non-null
// values, in row order.
func (a *SemanticAnalyzer) AnalyzeColumn(name string, values []string, isNull func(string) bool) SemanticAnalysis {
	samples := make([]string, 0, semanticSampleSize)
	for _, v := range values {
		if isNull(v) {
			continue
		}
		samples = append(samples, strings.TrimSpace(v))
		if len(samples) >= semanticSampleSize {
			break
		}
	}

	role, roleConfidence := roleFromName(name)
	tokens := NameTokens(name)

	detectedFormat, pattern, patternConfidence := detectFormat(samples)
	if role == schema.RoleUnknown {
		role, roleConfidence = roleFromFormat(detectedFormat)
	}

	var constraints []schema.Constraint
	if pattern != "" {
		constraints = append(constraints, schema.Constraint{
			Kind:       schema.ConstraintPattern,
			Pattern:    pattern,
			Confidence: patternConfidence,
		})
	}

	return SemanticAnalysis{
		SemanticRole:   role,
		RoleConfidence: roleConfidence,
		ValuePattern:   pattern,
		DetectedFormat: detectedFormat,
		Constraints:    constraints,
		Confidence:     (roleConfidence + patternConfidence) / 2,
		NameTokens:     tokens,
	}
}

func roleFromName(name string) (schema.SemanticRole, float64) {
	for _, rp := range rolePatterns {
		if rp.re.MatchString(name) {
			return rp.role, 0.85
		}
	}
	return schema.RoleUnknown, 0
}

func roleFromFormat(format string) (schema.SemanticRole, float64) {
	switch format {
	case "uuid", "alphanumeric_id", "sha_digest", "email":
		return schema.RoleSampleID, 0.6
	case "iso_date":
		return schema.RoleTechnical, 0.6
	default:
		return schema.RoleUnknown, 0
	}
}

// detectFormat finds a template matching at least formatMatchThreshold of
// the samples. The first template in declaration order wins ties.
func detectFormat(samples []string) (name, pattern string, confidence float64) {
	if len(samples) == 0 {
		return "", "", 0
	}
	for _, fp := range formatPatterns {
		matched := 0
		for _, s := range samples {
			if fp.re.MatchString(s) {
				matched++
			}
		}
		rate := float64(matched) / float64(len(samples))
		if rate >= formatMatchThreshold {
			return fp.name, fp.re.String(), rate
		}
	}
	return "", "", 0
}

// NameTokens splits a header on underscores, dashes, dots, whitespace and
// camelCase boundaries, lower-casing each token.
func NameTokens(name string) []string {
	var parts []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			flush()
		case r >= 'A' && r <= 'Z' && i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z':
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return parts
}
