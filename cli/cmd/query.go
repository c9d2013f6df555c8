package cmd

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// queryFlags are the shorthand flags shared by search and compile.
type queryFlags struct {
	fulltext  string
	where     []string
	orWhere   []string
	notWhere  []string
	filters   []string
	sortBy    string
	sortOrder string
	page      int
	perPage   int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.fulltext, "fulltext", "", "full-text search terms")
	cmd.Flags().StringArrayVar(&f.where, "where", nil, `property row joined with AND: "TERM TYPE [VALUE]"`)
	cmd.Flags().StringArrayVar(&f.orWhere, "or-where", nil, `property row joined with OR: "TERM TYPE [VALUE]"`)
	cmd.Flags().StringArrayVar(&f.notWhere, "not-where", nil, `property row joined with NOT: "TERM TYPE [VALUE]"`)
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, `filter row joined with AND: "FIELD TYPE [VALUE]"`)
	cmd.Flags().StringVar(&f.sortBy, "sort-by", "", "sort field, property term or relevance")
	cmd.Flags().StringVar(&f.sortOrder, "sort-order", "", "asc or desc")
	cmd.Flags().IntVar(&f.page, "page", 0, "page number")
	cmd.Flags().IntVar(&f.perPage, "per-page", 0, "results per page")
}

var rowIndexPattern = regexp.MustCompile(`^(property|filter)\[(\d+)\]`)

// nextIndex returns the first row index of kind not used by values.
func nextIndex(values url.Values, kind string) int {
	next := 0
	for key := range values {
		m := rowIndexPattern.FindStringSubmatch(key)
		if m == nil || m[1] != kind {
			continue
		}
		if i, err := strconv.Atoi(m[2]); err == nil && i >= next {
			next = i + 1
		}
	}
	return next
}

// splitRow splits "TERM TYPE [VALUE]". The value keeps its inner spaces.
func splitRow(row string) (term, typ, value string, err error) {
	parts := strings.SplitN(strings.TrimSpace(row), " ", 3)
	if len(parts) < 2 || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid row %q: expected \"TERM TYPE [VALUE]\"", row)
	}
	term, typ = parts[0], parts[1]
	if term == "*" {
		term = ""
	}
	if len(parts) == 3 {
		value = strings.TrimSpace(parts[2])
	}
	return term, typ, value, nil
}

// build merges the optional raw query string in args with the shorthand
// flags into form values.
func (f *queryFlags) build(raw string) (url.Values, error) {
	values := url.Values{}
	if raw != "" {
		parsed, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
		if err != nil {
			return nil, fmt.Errorf("invalid query string: %w", err)
		}
		values = parsed
	}

	if f.fulltext != "" {
		values.Set("fulltext_search", f.fulltext)
	}

	addProperty := func(rows []string, joiner string) error {
		for _, row := range rows {
			term, typ, value, err := splitRow(row)
			if err != nil {
				return err
			}
			prefix := fmt.Sprintf("property[%d]", nextIndex(values, "property"))
			values.Set(prefix+"[joiner]", joiner)
			values.Set(prefix+"[property]", term)
			values.Set(prefix+"[type]", typ)
			if value != "" {
				values.Set(prefix+"[text]", value)
			}
		}
		return nil
	}
	if err := addProperty(f.where, "and"); err != nil {
		return nil, err
	}
	if err := addProperty(f.orWhere, "or"); err != nil {
		return nil, err
	}
	if err := addProperty(f.notWhere, "not"); err != nil {
		return nil, err
	}

	for _, row := range f.filters {
		field, typ, value, err := splitRow(row)
		if err != nil {
			return nil, err
		}
		prefix := fmt.Sprintf("filter[%d]", nextIndex(values, "filter"))
		values.Set(prefix+"[join]", "and")
		values.Set(prefix+"[field]", field)
		values.Set(prefix+"[type]", typ)
		if value != "" {
			values.Set(prefix+"[val]", value)
		}
	}

	if f.sortBy != "" {
		values.Set("sort_by", f.sortBy)
	}
	if f.sortOrder != "" {
		values.Set("sort_order", f.sortOrder)
	}
	if f.page > 0 {
		values.Set("page", strconv.Itoa(f.page))
	}
	if f.perPage > 0 {
		values.Set("per_page", strconv.Itoa(f.perPage))
	}

	return values, nil
}

func rawArg(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}
