package search

import "strconv"

// binder hands out positional parameters. One binder is shared by a
// statement and every sub-select embedded in it, so numbering stays
// consistent across the whole statement.
type binder struct {
	args []interface{}
}

// bind appends v and returns its placeholder.
func (b *binder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *binder) len() int {
	return len(b.args)
}
