// Package entity defines the identifiers and attribute records shared by the
// extraction, annotation and reporting layers.
package entity

import (
	"sort"
	"strconv"
	"strings"
)

// ID identifies one trackable entity on the page. Slot entities use their
// decimal slot index, discovered entities the id of their name element, and
// table-cell entities CellPrefix followed by the cell's XPath.
type ID string

// CellPrefix marks ids of entities found by the table-cell heuristic.
const CellPrefix = "cell:"

// SlotID returns the id of fixed slot i.
func SlotID(i int) ID { return ID(strconv.Itoa(i)) }

// IsSlot reports whether id names a fixed slot.
func (id ID) IsSlot() bool {
	if id == "" {
		return false
	}
	_, err := strconv.Atoi(string(id))
	return err == nil
}

// IsCell reports whether id was produced by the table-cell heuristic.
func (id ID) IsCell() bool { return strings.HasPrefix(string(id), CellPrefix) }

// CellPath returns the XPath carried by a table-cell id.
func (id ID) CellPath() string { return strings.TrimPrefix(string(id), CellPrefix) }

// Field names one attribute of an entity.
type Field string

const (
	Name        Field = "name"
	Species     Field = "species"
	Color       Field = "color"
	Gender      Field = "gender"
	Level       Field = "level"
	Strength    Field = "strength"
	Defense     Field = "defense"
	Speed       Field = "speed"
	AgeDays     Field = "ageDays"
	AgeHours    Field = "ageHours"
	Birthday    Field = "birthday"
	Petpet      Field = "petpet"
	Trophies    Field = "trophies"
	Description Field = "description"
)

// Field sets requested by the page variants.
var (
	SpeciesFields = []Field{Name, Species, Color, Gender, AgeDays, AgeHours}
	StatsFields   = []Field{Name, Level, Strength, Defense, Speed}
	DetailFields  = []Field{Name, Species, Color, Gender, Level, AgeDays, AgeHours, Birthday, Petpet}
)

// FieldSet resolves a field set by its configuration name.
func FieldSet(name string) ([]Field, bool) {
	switch name {
	case "species", "":
		return SpeciesFields, true
	case "stats":
		return StatsFields, true
	case "detail":
		return DetailFields, true
	}
	return nil, false
}

// Partial is what a single extraction strategy found. Values are not yet
// normalised.
type Partial map[Field]string

// Record maps fields to trimmed non-empty values. Each present field
// remembers the strategy that supplied it.
type Record struct {
	values map[Field]string
	source map[Field]string
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{values: make(map[Field]string), source: make(map[Field]string)}
}

// Fill sets f to v only if f is still absent. Empty values are ignored.
// It reports whether the value was taken.
func (r *Record) Fill(f Field, v, source string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if r.values == nil {
		*r = NewRecord()
	}
	if _, ok := r.values[f]; ok {
		return false
	}
	r.values[f] = v
	r.source[f] = source
	return true
}

// Override sets f to v regardless of what was there. Empty values are
// ignored.
func (r *Record) Override(f Field, v, source string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if r.values == nil {
		*r = NewRecord()
	}
	r.values[f] = v
	r.source[f] = source
	return true
}

// Get returns the value of f and whether it is present.
func (r Record) Get(f Field) (string, bool) {
	v, ok := r.values[f]
	return v, ok
}

// Value returns the value of f, or "".
func (r Record) Value(f Field) string { return r.values[f] }

// Has reports whether f is present.
func (r Record) Has(f Field) bool {
	_, ok := r.values[f]
	return ok
}

// Source returns the name of the strategy that supplied f.
func (r Record) Source(f Field) string { return r.source[f] }

// Len returns the number of present fields.
func (r Record) Len() int { return len(r.values) }

// Map returns a copy of the present values, for serialisation.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.values))
	for f, v := range r.values {
		m[string(f)] = v
	}
	return m
}

// Fields returns the present fields in lexical order.
func (r Record) Fields() []Field {
	fs := make([]Field, 0, len(r.values))
	for f := range r.values {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}
