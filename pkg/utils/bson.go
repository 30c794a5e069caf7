package utils

import (
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// FlattenBSON walks a decoded document in key order and calls fn for every
// leaf with its dot-joined path and textual value.
func FlattenBSON(doc bson.D, fn func(path, value string)) {
	flattenBSON(doc, "", fn)
}

func flattenBSON(node interface{}, prefix string, fn func(path, value string)) {
	join := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}

	switch v := node.(type) {
	case bson.D:
		if len(v) == 0 && prefix != "" {
			fn(prefix, "{}")
		}
		for _, e := range v {
			flattenBSON(e.Value, join(e.Key), fn)
		}
	case bson.M:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 && prefix != "" {
			fn(prefix, "{}")
		}
		for _, k := range keys {
			flattenBSON(v[k], join(k), fn)
		}
	case bson.A:
		if len(v) == 0 && prefix != "" {
			fn(prefix, "[]")
		}
		for i, elem := range v {
			flattenBSON(elem, join(strconv.Itoa(i)), fn)
		}
	default:
		fn(prefix, ToString(v))
	}
}

// LeafValue is the BSON value stored for a flattened leaf: "{}" and "[]"
// become empty containers, anything else stays a string.
func LeafValue(value string) interface{} {
	switch value {
	case "{}":
		return bson.D{}
	case "[]":
		return bson.A{}
	}
	return value
}

// NestDocument turns dot-joined field names back into nested documents,
// keeping first-seen key order.
func NestDocument(fields []string, values map[string]string) bson.D {
	doc := bson.D{}
	for _, field := range fields {
		setPath(&doc, strings.Split(field, "."), values[field])
	}
	return doc
}

func setPath(doc *bson.D, parts []string, value string) {
	for i := range *doc {
		if (*doc)[i].Key != parts[0] {
			continue
		}
		if len(parts) == 1 {
			(*doc)[i].Value = LeafValue(value)
			return
		}
		child, ok := (*doc)[i].Value.(bson.D)
		if !ok {
			child = bson.D{}
		}
		setPath(&child, parts[1:], value)
		(*doc)[i].Value = child
		return
	}

	if len(parts) == 1 {
		*doc = append(*doc, bson.E{Key: parts[0], Value: LeafValue(value)})
		return
	}
	child := bson.D{}
	setPath(&child, parts[1:], value)
	*doc = append(*doc, bson.E{Key: parts[0], Value: child})
}
