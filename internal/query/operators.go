package query

import "sort"

// Shape is the kind of value an operator expects.
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeArray
	ShapeNone
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeNone:
		return "none"
	default:
		return "scalar"
	}
}

type operatorInfo struct {
	reciprocal Operator
	negative   bool
	shape      Shape
	integer    bool
	numeric    bool
	subquery   bool
}

type opFlag int

const (
	flagInteger opFlag = 1 << iota
	flagNumeric
	flagSubquery
)

var registry = map[Operator]operatorInfo{}

// negated registers a positive operator and its negated counterpart.
func negated(pos, neg Operator, shape Shape, flags opFlag) {
	register(pos, neg, false, shape, flags)
	register(neg, pos, true, shape, flags)
}

// paired registers two positive operators that are each other's
// reciprocal, like lt and gte.
func paired(a, b Operator, shape Shape, flags opFlag) {
	register(a, b, false, shape, flags)
	register(b, a, false, shape, flags)
}

func register(op, reciprocal Operator, negative bool, shape Shape, flags opFlag) {
	registry[op] = operatorInfo{
		reciprocal: reciprocal,
		negative:   negative,
		shape:      shape,
		integer:    flags&flagInteger != 0,
		numeric:    flags&flagNumeric != 0,
		subquery:   flags&flagSubquery != 0,
	}
}

func init() {
	negated(OpEqual, OpNotEqual, ShapeScalar, 0)
	negated(OpContains, OpNotContains, ShapeScalar, 0)
	negated(OpStartsWith, OpNotStartsWith, ShapeScalar, 0)
	negated(OpEndsWith, OpNotEndsWith, ShapeScalar, 0)
	negated(OpNear, OpNotNear, ShapeScalar, 0)
	negated(OpMatches, OpNotMatches, ShapeScalar, 0)

	paired(OpLessThan, OpGreaterOrEqual, ShapeScalar, 0)
	paired(OpLessOrEqual, OpGreaterThan, ShapeScalar, 0)
	paired(OpNumLessThan, OpNumGreaterOrEqual, ShapeScalar, flagNumeric)
	paired(OpNumLessOrEqual, OpNumGreaterThan, ShapeScalar, flagNumeric)

	negated(OpYearEqual, OpYearNotEqual, ShapeScalar, flagInteger)
	paired(OpYearLessThan, OpYearGreaterOrEqual, ShapeScalar, flagInteger)
	paired(OpYearLessOrEqual, OpYearGreaterThan, ShapeScalar, flagInteger)

	negated(OpList, OpNotList, ShapeArray, 0)

	negated(OpResource, OpNotResource, ShapeArray, flagInteger)
	negated(OpResourceQuery, OpNotResourceQuery, ShapeScalar, flagSubquery)

	negated(OpLinked, OpNotLinked, ShapeNone, 0)
	negated(OpLinkedBy, OpNotLinkedBy, ShapeArray, flagInteger)
	negated(OpLinkedQuery, OpNotLinkedQuery, ShapeScalar, flagSubquery)

	negated(OpExists, OpNotExists, ShapeNone, 0)
	negated(OpExistsSingle, OpNotExistsSingle, ShapeNone, 0)
	negated(OpExistsMany, OpNotExistsMany, ShapeNone, 0)

	negated(OpType, OpNotType, ShapeScalar, 0)
	negated(OpTypeLiteral, OpNotTypeLiteral, ShapeNone, 0)
	negated(OpTypeResource, OpNotTypeResource, ShapeNone, 0)
	negated(OpTypeURI, OpNotTypeURI, ShapeNone, 0)
	negated(OpDataType, OpNotDataType, ShapeArray, 0)

	for _, op := range DupOperators() {
		negated(op, "n"+op, ShapeNone, 0)
	}
}

// DupOperators returns the positive duplicate operators.
func DupOperators() []Operator {
	return []Operator{
		OpDup, OpDupT, OpDupL, OpDupTL,
		OpDupV, OpDupVT, OpDupVL, OpDupVTL,
		OpDupR, OpDupRT, OpDupRL, OpDupRTL,
		OpDupU, OpDupUT, OpDupUL, OpDupUTL,
	}
}

// Known reports whether op is a registered operator.
func Known(op Operator) bool {
	_, ok := registry[op]
	return ok
}

// Reciprocal returns the operator meaning "not op". Unknown operators are
// returned unchanged.
func Reciprocal(op Operator) Operator {
	if info, ok := registry[op]; ok {
		return info.reciprocal
	}
	return op
}

// IsNegative reports whether the operator name itself encodes a negation.
func IsNegative(op Operator) bool {
	return registry[op].negative
}

// ValueShape returns the value shape expected by op.
func ValueShape(op Operator) Shape {
	return registry[op].shape
}

// IsInteger reports whether values of op are cast to integers.
func IsInteger(op Operator) bool {
	return registry[op].integer
}

// IsNumeric reports whether op compares numbers.
func IsNumeric(op Operator) bool {
	return registry[op].numeric
}

// IsSubquery reports whether op takes a nested query as value.
func IsSubquery(op Operator) bool {
	return registry[op].subquery
}

// IsDup reports whether op belongs to the duplicate family, negated or not.
func IsDup(op Operator) bool {
	s := string(op)
	if len(s) > 0 && s[0] == 'n' {
		s = s[1:]
	}
	return len(s) >= 3 && s[:3] == "dup" && Known(op)
}

// Operators returns every registered operator, sorted.
func Operators() []Operator {
	ops := make([]Operator, 0, len(registry))
	for op := range registry {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
