// Package models holds the normalized record types exchanged between
// sources, transformers and destinations.
package models

import (
	"errors"
	"fmt"
)

// ErrFieldNotFound is returned when a row has no item with the requested field name.
var ErrFieldNotFound = errors.New("field not found")

// DataItem is a single named value. The name is the item's identity inside
// a row; only the owning DataRow can change it.
type DataItem struct {
	name  string
	Value string
}

// NewDataItem returns an item for use with NewDataRow.
func NewDataItem(fieldName, value string) DataItem {
	return DataItem{name: fieldName, Value: value}
}

// FieldName returns the item's name.
func (i *DataItem) FieldName() string {
	return i.name
}

// DataRow is an ordered set of DataItems keyed by field name.
// A row never holds two items with the same field name.
type DataRow struct {
	items []*DataItem
	index map[string]int
}

// NewDataRow builds a row from name/value pairs given in order.
func NewDataRow(items ...DataItem) *DataRow {
	row := &DataRow{index: make(map[string]int, len(items))}
	for _, item := range items {
		row.AddDataItem(item.name, item.Value)
	}
	return row
}

// AddDataItem appends an item. If the field already exists its value is
// overwritten in place and its position is kept.
func (r *DataRow) AddDataItem(fieldName, value string) *DataItem {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[fieldName]; ok {
		r.items[i].Value = value
		return r.items[i]
	}
	item := &DataItem{name: fieldName, Value: value}
	r.index[fieldName] = len(r.items)
	r.items = append(r.items, item)
	return item
}

// GetDataItemByFieldName returns the item for fieldName, or nil.
// The returned pointer is live: writing to Value changes the row.
func (r *DataRow) GetDataItemByFieldName(fieldName string) *DataItem {
	if i, ok := r.index[fieldName]; ok {
		return r.items[i]
	}
	return nil
}

// Lookup is GetDataItemByFieldName with an error for a missing field.
func (r *DataRow) Lookup(fieldName string) (*DataItem, error) {
	item := r.GetDataItemByFieldName(fieldName)
	if item == nil {
		return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, fieldName)
	}
	return item, nil
}

// Has reports whether the row contains fieldName.
func (r *DataRow) Has(fieldName string) bool {
	_, ok := r.index[fieldName]
	return ok
}

// RemoveDataItem deletes fieldName from the row and reports whether it was present.
func (r *DataRow) RemoveDataItem(fieldName string) bool {
	i, ok := r.index[fieldName]
	if !ok {
		return false
	}
	r.items = append(r.items[:i], r.items[i+1:]...)
	r.reindex()
	return true
}

// RenameField changes the name of oldName to newName, keeping its value and
// position. An existing item already called newName is dropped, so the
// renamed item wins.
func (r *DataRow) RenameField(oldName, newName string) bool {
	i, ok := r.index[oldName]
	if !ok {
		return false
	}
	if oldName == newName {
		return true
	}
	renamed := r.items[i]
	if j, clash := r.index[newName]; clash {
		r.items = append(r.items[:j], r.items[j+1:]...)
	}
	renamed.name = newName
	r.reindex()
	return true
}

// RenameFields applies fieldMap (old name -> new name) to every item at
// once. Targets come from the names the items had before the call, so
// {a: b, b: c} moves a to b and b to c whatever the column order. When two
// items end up with the same name the row keeps one of them: a renamed item
// beats one that kept its name, otherwise the later item wins. The survivor
// takes the position of the first of them.
func (r *DataRow) RenameFields(fieldMap map[string]string) {
	if len(fieldMap) == 0 || len(r.items) == 0 {
		return
	}
	items := make([]*DataItem, 0, len(r.items))
	index := make(map[string]int, len(r.items))
	renamed := make(map[string]bool, len(r.items))
	for _, item := range r.items {
		name, ok := fieldMap[item.name]
		if !ok {
			name = item.name
		}
		if i, clash := index[name]; clash {
			if ok || !renamed[name] {
				item.name = name
				items[i] = item
				renamed[name] = ok || renamed[name]
			}
			continue
		}
		item.name = name
		index[name] = len(items)
		items = append(items, item)
		renamed[name] = ok
	}
	r.items = items
	r.index = index
}

// GetDataItems returns the items in insertion order.
func (r *DataRow) GetDataItems() []*DataItem {
	out := make([]*DataItem, len(r.items))
	copy(out, r.items)
	return out
}

// FieldNames returns the field names in insertion order.
func (r *DataRow) FieldNames() []string {
	names := make([]string, len(r.items))
	for i, item := range r.items {
		names[i] = item.name
	}
	return names
}

// Len returns the number of items.
func (r *DataRow) Len() int {
	return len(r.items)
}

// ToFlatMap flattens the row into fieldName -> value.
func (r *DataRow) ToFlatMap() map[string]string {
	m := make(map[string]string, len(r.items))
	for _, item := range r.items {
		m[item.name] = item.Value
	}
	return m
}

func (r *DataRow) reindex() {
	r.index = make(map[string]int, len(r.items))
	for i, item := range r.items {
		r.index[item.name] = i
	}
}
