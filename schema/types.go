package schema

// ColumnType is the inferred primitive type of a column.
type ColumnType string

const (
	TypeInteger  ColumnType = "integer"
	TypeFloat    ColumnType = "float"
	TypeString   ColumnType = "string"
	TypeBoolean  ColumnType = "boolean"
	TypeDate     ColumnType = "date"
	TypeDateTime ColumnType = "datetime"
	TypeUnknown  ColumnType = "unknown"
)

// IsNumeric reports whether the type is integer or float.
func (t ColumnType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// IsTemporal reports whether the type carries a date component.
func (t ColumnType) IsTemporal() bool {
	return t == TypeDate || t == TypeDateTime
}

// SemanticType classifies how a column's values behave statistically.
type SemanticType string

const (
	SemanticIdentifier  SemanticType = "identifier"
	SemanticCategorical SemanticType = "categorical"
	SemanticOrdinal     SemanticType = "ordinal"
	SemanticContinuous  SemanticType = "continuous"
	SemanticFreeText    SemanticType = "free_text"
	SemanticMissing     SemanticType = "missing"
	SemanticUnknown     SemanticType = "unknown"
)

// SemanticRole is the column's role in the dataset.
type SemanticRole string

const (
	RoleSampleID       SemanticRole = "sample_id"
	RoleGroupingVar    SemanticRole = "grouping_var"
	RoleCovariate      SemanticRole = "covariate"
	RoleOutcome        SemanticRole = "outcome"
	RoleTechnical      SemanticRole = "technical"
	RoleAdministrative SemanticRole = "administrative"
	RoleUnknown        SemanticRole = "unknown"
)

// ConstraintKind discriminates Constraint payloads.
type ConstraintKind string

const (
	ConstraintPattern       ConstraintKind = "pattern"
	ConstraintSetMembership ConstraintKind = "set_membership"
	ConstraintRange         ConstraintKind = "range"
	ConstraintLength        ConstraintKind = "length"
	ConstraintUnique        ConstraintKind = "unique"
	ConstraintNotNull       ConstraintKind = "not_null"
)

// Constraint is a single inferred rule on column values. Only the fields
// relevant to Kind are populated.
type Constraint struct {
	Kind       ConstraintKind `json:"type"`
	Pattern    string         `json:"pattern,omitempty"`
	Values     []string       `json:"values,omitempty"`
	Min        *float64       `json:"min,omitempty"`
	Max        *float64       `json:"max,omitempty"`
	MinLength  *int           `json:"min_length,omitempty"`
	MaxLength  *int           `json:"max_length,omitempty"`
	Confidence float64        `json:"confidence"`
}
