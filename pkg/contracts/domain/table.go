package domain

// Table is an ordered collection of patient records sharing one schema.
//
// Stages mutate the table they receive; a caller must not assume its input is
// unchanged after handing it to a stage.
type Table struct {
	// Columns is the source header in source order
	Columns []string `json:"columns"`

	// ExtraColumns names the entries of PatientRecord.Extra, in order
	ExtraColumns []string `json:"extra_columns"`

	Rows []PatientRecord `json:"rows"`

	// Enriched is set once the derived columns have been computed
	Enriched bool `json:"enriched"`
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Header returns the output header: source columns followed by derived
// columns when the table has been enriched.
func (t *Table) Header() []string {
	header := make([]string, 0, len(t.Columns)+len(DerivedColumns))
	header = append(header, t.Columns...)
	if t.Enriched {
		header = append(header, DerivedColumns...)
	}
	return header
}

// ExtraIndex returns the position of an extra column, or -1.
func (t *Table) ExtraIndex(name string) int {
	for i, c := range t.ExtraColumns {
		if c == name {
			return i
		}
	}
	return -1
}
