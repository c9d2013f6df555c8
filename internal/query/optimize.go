package query

// Optimize folds runs of consecutive equality rows on the same fields into
// a single list row, so "subject = A OR subject = B OR subject = C" becomes
// one "subject IN (A, B, C)". Long OR chains of joins are very slow to
// plan, and some forms generate thousands of them.
//
// Positive runs (eq, list) must be joined by "or" and each member must be a
// whole OR term: the run starts at the first row or at a row joined by
// "or", and the last member must not be followed by a row joined by "and"
// or "not". Negative runs (neq, nlist) must be joined by "and". The folded
// row keeps the joiner of the first member.
func Optimize(rows []QueryRow) []QueryRow {
	if len(rows) < 2 {
		return rows
	}

	out := make([]QueryRow, 0, len(rows))
	for i := 0; i < len(rows); {
		end := runEnd(rows, i)
		if end-i < 2 {
			out = append(out, rows[i])
			i++
			continue
		}
		out = append(out, foldRun(rows[i:end]))
		i = end
	}
	return out
}

func isPositiveListable(op Operator) bool {
	return op == OpEqual || op == OpList
}

func isNegativeListable(op Operator) bool {
	return op == OpNotEqual || op == OpNotList
}

// runEnd returns the exclusive end of the foldable run starting at i.
func runEnd(rows []QueryRow, i int) int {
	first := rows[i]
	if first.Join == JoinNot {
		return i + 1
	}

	switch {
	case isPositiveListable(first.Operator):
		if i > 0 && first.Join != JoinOr {
			return i + 1
		}
		j := i + 1
		for j < len(rows) && rows[j].Join == JoinOr &&
			isPositiveListable(rows[j].Operator) && sameTarget(first, rows[j]) {
			j++
		}
		// The last member binds with the next row when it is ANDed.
		if j < len(rows) && rows[j].Join != JoinOr {
			j--
		}
		return j

	case isNegativeListable(first.Operator):
		j := i + 1
		for j < len(rows) && rows[j].Join == JoinAnd &&
			isNegativeListable(rows[j].Operator) && sameTarget(first, rows[j]) {
			j++
		}
		return j

	default:
		return i + 1
	}
}

func sameTarget(a, b QueryRow) bool {
	return equalStrings(a.Fields, b.Fields) && equalStrings(a.DataTypes, b.DataTypes)
}

func foldRun(run []QueryRow) QueryRow {
	folded := run[0]
	folded.Fields = append([]string(nil), run[0].Fields...)
	folded.DataTypes = append([]string(nil), run[0].DataTypes...)
	if isNegativeListable(folded.Operator) {
		folded.Operator = OpNotList
	} else {
		folded.Operator = OpList
	}
	folded.Text = ""

	var values []string
	for _, row := range run {
		if row.Operator == OpEqual || row.Operator == OpNotEqual {
			values = append(values, row.Text)
			continue
		}
		values = append(values, row.Values...)
	}
	folded.Values = dedupStrings(values)
	return folded
}
