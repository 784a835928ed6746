package entity

import (
	"regexp"
	"strings"
)

// Naming holds the element id conventions of a page family.
type Naming struct {
	// SlotPrefix is prepended to a slot index: "pet" gives pet0, pet1...
	SlotPrefix string
	// NameSuffix joins the base to the name field: "_name" gives pet0_name.
	NameSuffix string
	// Separator joins the base to any other field: "_" gives pet0_species.
	Separator string
}

// DefaultNaming matches the pound pages.
var DefaultNaming = Naming{SlotPrefix: "pet", NameSuffix: "_name", Separator: "_"}

// Base returns the id stem the entity's per-field elements hang off. Cell
// entities have no stem.
func (n Naming) Base(id ID) string {
	switch {
	case id.IsCell():
		return ""
	case id.IsSlot():
		return n.SlotPrefix + string(id)
	}
	s := string(id)
	if base, ok := strings.CutSuffix(s, n.NameSuffix); ok && base != "" {
		return base
	}
	return s
}

// NameElementID returns the id of the entity's name element.
func (n Naming) NameElementID(id ID) string {
	switch {
	case id.IsCell():
		return ""
	case id.IsSlot():
		return n.SlotPrefix + string(id) + n.NameSuffix
	}
	return string(id)
}

// FieldElementID returns the conventional element id for one field.
func (n Naming) FieldElementID(id ID, f Field) string {
	if f == Name {
		return n.NameElementID(id)
	}
	base := n.Base(id)
	if base == "" {
		return ""
	}
	return base + n.Separator + string(f)
}

// Pattern returns a regexp matching element ids that follow the entity or
// field conventions: slot-prefixed ids (pet0_species), ids containing both
// the prefix and "name", and ids ending with a field suffix.
func (n Naming) Pattern(fields []Field) *regexp.Regexp {
	prefix := regexp.QuoteMeta(n.SlotPrefix)
	sep := regexp.QuoteMeta(n.Separator)
	var alts []string
	for _, f := range fields {
		alts = append(alts, regexp.QuoteMeta(string(f)))
	}
	expr := `(?i)^` + prefix + `\d+` + sep +
		`|` + prefix + `.*name` +
		`|` + sep + `(?:` + strings.Join(alts, "|") + `|table|details)$`
	return regexp.MustCompile(expr)
}
