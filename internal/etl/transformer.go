package etl

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/BartekS5/rowmigrate/pkg/models"
)

// TransformerSpec describes a built-in transformer.
type TransformerSpec struct {
	Type   string
	Field  string
	Target string
	Value  string
}

// NewTransformer builds the built-in transformer named by spec.Type.
func NewTransformer(spec TransformerSpec) (Transformer, error) {
	if spec.Field == "" {
		return nil, configError("transformer %q needs a field", spec.Type)
	}

	switch spec.Type {
	case "uppercase":
		return rewriteValue(spec.Field, strings.ToUpper), nil
	case "lowercase":
		return rewriteValue(spec.Field, strings.ToLower), nil
	case "trim":
		return rewriteValue(spec.Field, strings.TrimSpace), nil
	case "md5":
		return hashInto(spec.Field, defaultTarget(spec, "_md5"), func(s string) string {
			sum := md5.Sum([]byte(s))
			return hex.EncodeToString(sum[:])
		}), nil
	case "sha256":
		return hashInto(spec.Field, defaultTarget(spec, "_sha256"), func(s string) string {
			sum := sha256.Sum256([]byte(s))
			return hex.EncodeToString(sum[:])
		}), nil
	case "set":
		return SetValue(spec.Field, spec.Value), nil
	case "drop":
		return DropField(spec.Field), nil
	case "copy":
		if spec.Target == "" {
			return nil, configError("copy transformer on %q needs a target", spec.Field)
		}
		return CopyField(spec.Field, spec.Target), nil
	default:
		return nil, configError("unknown transformer type %q", spec.Type)
	}
}

func defaultTarget(spec TransformerSpec, suffix string) string {
	if spec.Target != "" {
		return spec.Target
	}
	return spec.Field + suffix
}

// rewriteValue applies fn to field's value. A missing field is left alone.
func rewriteValue(field string, fn func(string) string) Transformer {
	return TransformerFunc(func(row *models.DataRow) error {
		if item := row.GetDataItemByFieldName(field); item != nil {
			item.Value = fn(item.Value)
		}
		return nil
	})
}

// hashInto stores fn(field) in target. A missing field is an error.
func hashInto(field, target string, fn func(string) string) Transformer {
	return TransformerFunc(func(row *models.DataRow) error {
		item, err := row.Lookup(field)
		if err != nil {
			return err
		}
		row.AddDataItem(target, fn(item.Value))
		return nil
	})
}

// SetValue sets field to a constant, adding it when absent.
func SetValue(field, value string) Transformer {
	return TransformerFunc(func(row *models.DataRow) error {
		row.AddDataItem(field, value)
		return nil
	})
}

// DropField removes field when present.
func DropField(field string) Transformer {
	return TransformerFunc(func(row *models.DataRow) error {
		row.RemoveDataItem(field)
		return nil
	})
}

// CopyField copies field into target. A missing field is an error.
func CopyField(field, target string) Transformer {
	return TransformerFunc(func(row *models.DataRow) error {
		item, err := row.Lookup(field)
		if err != nil {
			return fmt.Errorf("copy to %q: %w", target, err)
		}
		row.AddDataItem(target, item.Value)
		return nil
	})
}
