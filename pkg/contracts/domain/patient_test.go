package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func completeRecord() PatientRecord {
	return PatientRecord{
		Age:               Some(40),
		Gender:            Some("female"),
		MedicalCondition:  Some("asthma"),
		AdmissionDate:     Some("2024-01-01"),
		DischargeDate:     Some("2024-01-05"),
		ReadmissionStatus: Some("No"),
		Extra:             []Null[string]{Some("Blue Cross")},
	}
}

func TestHasMissingSource(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PatientRecord)
		want   bool
	}{
		{name: "complete", mutate: func(*PatientRecord) {}, want: false},
		{name: "missing age", mutate: func(r *PatientRecord) { r.Age = None[int]() }, want: true},
		{name: "missing status", mutate: func(r *PatientRecord) { r.ReadmissionStatus = None[string]() }, want: true},
		{name: "missing extra", mutate: func(r *PatientRecord) { r.Extra[0] = None[string]() }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := completeRecord()
			tt.mutate(&r)
			assert.Equal(t, tt.want, r.HasMissingSource())
		})
	}
}

func TestNullOr(t *testing.T) {
	assert.Equal(t, 3, Some(3).Or(7))
	assert.Equal(t, 7, None[int]().Or(7))
	assert.True(t, None[string]().IsNull())
}

func TestTableHeader(t *testing.T) {
	table := &Table{Columns: []string{ColumnAge, "Insurance Provider"}, ExtraColumns: []string{"Insurance Provider"}}
	assert.Equal(t, []string{ColumnAge, "Insurance Provider"}, table.Header())
	assert.Equal(t, 0, table.ExtraIndex("Insurance Provider"))
	assert.Equal(t, -1, table.ExtraIndex("Billing Amount"))

	table.Enriched = true
	assert.Equal(t, []string{ColumnAge, "Insurance Provider", ColumnLengthOfStay, ColumnAgeGroup, ColumnReadmitted}, table.Header())

	var empty *Table
	assert.Equal(t, 0, empty.Len())
}
