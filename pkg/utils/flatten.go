package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FlattenJSON walks doc in document order and calls fn for every leaf with
// its dot-joined path: {"user":{"name":"x"}} yields ("user.name", "x").
// Array elements use their index as the path component.
func FlattenJSON(doc gjson.Result, fn func(path, value string)) {
	flattenJSON(doc, "", fn)
}

func flattenJSON(node gjson.Result, prefix string, fn func(path, value string)) {
	if !node.IsObject() && !node.IsArray() {
		fn(prefix, jsonLeaf(node))
		return
	}

	empty := true
	idx := 0
	node.ForEach(func(key, value gjson.Result) bool {
		empty = false
		name := key.String()
		if node.IsArray() {
			name = strconv.Itoa(idx)
			idx++
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		flattenJSON(value, name, fn)
		return true
	})

	// array_dot keeps empty containers as values
	if empty && prefix != "" {
		if node.IsArray() {
			fn(prefix, "[]")
		} else {
			fn(prefix, "{}")
		}
	}
}

func jsonLeaf(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.String()
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	default:
		return v.Raw
	}
}

// UnflattenJSON builds a JSON object from dot-joined field names, the
// inverse of FlattenJSON. Keys appear in the order given. The values "{}"
// and "[]" become empty containers.
func UnflattenJSON(fields []string, values map[string]string) (string, error) {
	doc := "{}"
	for _, field := range fields {
		var err error
		switch value := values[field]; value {
		case "{}", "[]":
			doc, err = sjson.SetRaw(doc, escapePath(field), value)
		default:
			doc, err = sjson.Set(doc, escapePath(field), value)
		}
		if err != nil {
			return "", fmt.Errorf("cannot place field %q: %w", field, err)
		}
	}
	return doc, nil
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapePath(field string) string {
	return pathEscaper.Replace(field)
}
