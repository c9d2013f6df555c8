package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const maxFormDepth = 8

// ParseQueryString decodes a query string with bracketed keys, such as
// "property[0][property]=dcterms:title&property[0][type]=eq", into a raw
// query. Empty brackets append a new element, numeric keys become list
// indexes and a repeated plain key keeps its last value.
func ParseQueryString(s string) (Raw, error) {
	root := map[string]any{}
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("invalid query key %q: %w", key, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("invalid query value for %q: %w", k, err)
		}
		setPath(root, splitFormKey(k), v)
	}
	return finalizeRoot(root), nil
}

// ParseForm decodes url.Values the same way as ParseQueryString. Keys are
// processed in sorted order since url.Values does not keep the original
// order, so appended elements follow key order.
func ParseForm(values url.Values) Raw {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := map[string]any{}
	for _, k := range keys {
		path := splitFormKey(k)
		for _, v := range values[k] {
			setPath(root, path, v)
		}
	}
	return finalizeRoot(root)
}

// splitFormKey splits "a[b][]" into ["a", "b", ""].
func splitFormKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return []string{key}
	}
	path := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 && rest[0] == '[' && len(path) < maxFormDepth {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

func setPath(node map[string]any, path []string, value string) {
	for i, seg := range path {
		if seg == "" {
			seg = strconv.Itoa(nextIndex(node))
		}
		if i == len(path)-1 {
			node[seg] = value
			return
		}
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
}

func nextIndex(node map[string]any) int {
	next := 0
	for k := range node {
		if n, err := strconv.Atoi(k); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

func finalizeRoot(root map[string]any) Raw {
	for k, v := range root {
		root[k] = finalizeForm(v)
	}
	return root
}

// finalizeForm turns maps whose keys are all indexes into slices.
func finalizeForm(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	indexed := len(m) > 0
	for k, child := range m {
		m[k] = finalizeForm(child)
		if _, err := strconv.Atoi(k); err != nil {
			indexed = false
		}
	}
	if !indexed {
		return m
	}
	return elements(m)
}
