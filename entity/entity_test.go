package entity

import "testing"

func TestRecord_FillFirstWins(t *testing.T) {
	r := NewRecord()
	if !r.Fill(Species, "  Kougra ", "canonical") {
		t.Fatal("first Fill should take the value")
	}
	if r.Fill(Species, "Aisha", "text") {
		t.Error("second Fill should not replace a present value")
	}
	if r.Fill(Color, "   ", "table") {
		t.Error("whitespace-only value should be treated as absent")
	}
	if got := r.Value(Species); got != "Kougra" {
		t.Errorf("Species: got %q, want %q", got, "Kougra")
	}
	if got := r.Source(Species); got != "canonical" {
		t.Errorf("Source: got %q, want %q", got, "canonical")
	}
	if r.Has(Color) {
		t.Error("Color should be absent")
	}
}

func TestRecord_Override(t *testing.T) {
	var r Record
	r.Fill(Gender, "male", "text")
	r.Override(Gender, "female", "override")
	if got := r.Value(Gender); got != "female" {
		t.Errorf("Gender: got %q, want %q", got, "female")
	}
	if r.Override(Gender, "", "override") {
		t.Error("empty override should be ignored")
	}
}

func TestNaming(t *testing.T) {
	n := DefaultNaming

	if got := n.NameElementID("0"); got != "pet0_name" {
		t.Errorf("slot name id: got %q", got)
	}
	if got := n.FieldElementID("2", Species); got != "pet2_species" {
		t.Errorf("slot field id: got %q", got)
	}
	if got := n.NameElementID("mypet_name"); got != "mypet_name" {
		t.Errorf("discovered name id: got %q", got)
	}
	if got := n.FieldElementID("mypet_name", Color); got != "mypet_color" {
		t.Errorf("discovered field id: got %q", got)
	}
	cell := ID(CellPrefix + "/html/body/table/tbody/tr[2]/td")
	if !cell.IsCell() || cell.IsSlot() {
		t.Error("cell id misclassified")
	}
	if got := n.FieldElementID(cell, Species); got != "" {
		t.Errorf("cell ids have no field elements, got %q", got)
	}
}

func TestNamingPattern(t *testing.T) {
	re := DefaultNaming.Pattern(SpeciesFields)
	for _, id := range []string{"pet0_name", "pet12_species", "other_pet_name", "x_color", "pet1_table"} {
		if !re.MatchString(id) {
			t.Errorf("pattern should match %q", id)
		}
	}
	for _, id := range []string{"header", "petpage", "content_main"} {
		if re.MatchString(id) {
			t.Errorf("pattern should not match %q", id)
		}
	}
}
