// Package query holds the search query model: operators, rows, the
// normalizer and the form adapter. It has no database dependency so the
// API, the compiler and the CLI can share it.
package query

// Operator is a query row comparison code as submitted by search forms.
type Operator string

const (
	// Value operators compare the literal value, the uri and the title of
	// the linked resource.
	OpEqual         Operator = "eq"
	OpNotEqual      Operator = "neq"
	OpContains      Operator = "in"
	OpNotContains   Operator = "nin"
	OpStartsWith    Operator = "sw"
	OpNotStartsWith Operator = "nsw"
	OpEndsWith      Operator = "ew"
	OpNotEndsWith   Operator = "new"
	OpNear          Operator = "near"  // soundex
	OpNotNear       Operator = "nnear" // soundex
	OpMatches       Operator = "ma"    // regular expression
	OpNotMatches    Operator = "nma"

	// String comparisons.
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpGreaterOrEqual Operator = "gte"
	OpGreaterThan    Operator = "gt"

	// Numeric comparisons.
	OpNumLessThan       Operator = "<"
	OpNumLessOrEqual    Operator = "≤"
	OpNumGreaterOrEqual Operator = "≥"
	OpNumGreaterThan    Operator = ">"

	// Year comparisons on the leading integer of the value.
	OpYearEqual          Operator = "yreq"
	OpYearNotEqual       Operator = "nyreq"
	OpYearLessThan       Operator = "yrlt"
	OpYearLessOrEqual    Operator = "yrlte"
	OpYearGreaterOrEqual Operator = "yrgte"
	OpYearGreaterThan    Operator = "yrgt"

	OpList    Operator = "list"
	OpNotList Operator = "nlist"

	// Linked resource ids and sub-queries.
	OpResource         Operator = "res"
	OpNotResource      Operator = "nres"
	OpResourceQuery    Operator = "resq"
	OpNotResourceQuery Operator = "nresq"

	// The resource itself is the target of values.
	OpLinked         Operator = "lex"
	OpNotLinked      Operator = "nlex"
	OpLinkedBy       Operator = "lres"
	OpNotLinkedBy    Operator = "nlres"
	OpLinkedQuery    Operator = "lkq"
	OpNotLinkedQuery Operator = "nlkq"

	// Value counts.
	OpExists          Operator = "ex"
	OpNotExists       Operator = "nex"
	OpExistsSingle    Operator = "exs"
	OpNotExistsSingle Operator = "nexs"
	OpExistsMany      Operator = "exm"
	OpNotExistsMany   Operator = "nexm"

	// Value types.
	OpType            Operator = "tp"
	OpNotType         Operator = "ntp"
	OpTypeLiteral     Operator = "tpl"
	OpNotTypeLiteral  Operator = "ntpl"
	OpTypeResource    Operator = "tpr"
	OpNotTypeResource Operator = "ntpr"
	OpTypeURI         Operator = "tpu"
	OpNotTypeURI      Operator = "ntpu"
	OpDataType        Operator = "dtp"
	OpNotDataType     Operator = "ndtp"

	// Duplicates. The suffix letters select the grouping columns: v value,
	// r linked resource, u uri (none of them means all three), t type and
	// l language.
	OpDup       Operator = "dup"
	OpDupT      Operator = "dupt"
	OpDupL      Operator = "dupl"
	OpDupTL     Operator = "duptl"
	OpDupV      Operator = "dupv"
	OpDupVT     Operator = "dupvt"
	OpDupVL     Operator = "dupvl"
	OpDupVTL    Operator = "dupvtl"
	OpDupR      Operator = "dupr"
	OpDupRT     Operator = "duprt"
	OpDupRL     Operator = "duprl"
	OpDupRTL    Operator = "duprtl"
	OpDupU      Operator = "dupu"
	OpDupUT     Operator = "duput"
	OpDupUL     Operator = "dupul"
	OpDupUTL    Operator = "duputl"
	OpNotDup    Operator = "ndup"
	OpNotDupT   Operator = "ndupt"
	OpNotDupL   Operator = "ndupl"
	OpNotDupTL  Operator = "nduptl"
	OpNotDupV   Operator = "ndupv"
	OpNotDupVT  Operator = "ndupvt"
	OpNotDupVL  Operator = "ndupvl"
	OpNotDupVTL Operator = "ndupvtl"
	OpNotDupR   Operator = "ndupr"
	OpNotDupRT  Operator = "nduprt"
	OpNotDupRL  Operator = "nduprl"
	OpNotDupRTL Operator = "nduprtl"
	OpNotDupU   Operator = "ndupu"
	OpNotDupUT  Operator = "nduput"
	OpNotDupUL  Operator = "ndupul"
	OpNotDupUTL Operator = "nduputl"
)

// Joiner combines a row with the predicate built so far.
type Joiner string

const (
	JoinAnd Joiner = "and"
	JoinOr  Joiner = "or"
	JoinNot Joiner = "not" // and, with the reciprocal operator
)

// ParseJoiner returns the joiner for s. Anything unknown is "and".
func ParseJoiner(s string) Joiner {
	switch Joiner(s) {
	case JoinOr:
		return JoinOr
	case JoinNot:
		return JoinNot
	default:
		return JoinAnd
	}
}

// QueryRow is one normalized filter clause. Exactly one of Text, Values or
// IDs carries the value, depending on the operator shape; sub-query
// operators carry either a form-encoded Text or a nested Subquery.
type QueryRow struct {
	Fields    []string       `json:"fields,omitempty"`
	Operator  Operator       `json:"type"`
	Text      string         `json:"text,omitempty"`
	Values    []string       `json:"values,omitempty"`
	IDs       []int          `json:"ids,omitempty"`
	Subquery  map[string]any `json:"subquery,omitempty"`
	Join      Joiner         `json:"join"`
	DataTypes []string       `json:"datatype,omitempty"`
}

// DatetimeRow filters on the created or modified date of the resource.
type DatetimeRow struct {
	Join     Joiner   `json:"join"`
	Field    string   `json:"field"`
	Operator Operator `json:"type"`
	Value    string   `json:"val,omitempty"`
}

// Raw is a loosely typed query as decoded from a form or a JSON body.
type Raw = map[string]any
