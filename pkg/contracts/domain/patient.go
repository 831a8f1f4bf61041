package domain

import (
	"time"
)

// Source column names of the healthcare snapshot
const (
	ColumnAge               = "Age"
	ColumnGender            = "Gender"
	ColumnMedicalCondition  = "Medical Condition"
	ColumnAdmissionDate     = "Date of Admission"
	ColumnDischargeDate     = "Discharge Date"
	ColumnReadmissionStatus = "Readmission Status"
)

// Derived column names added by the transformer
const (
	ColumnLengthOfStay = "Length of Stay (days)"
	ColumnAgeGroup     = "Age Group"
	ColumnReadmitted   = "Readmitted"
)

// RequiredColumns lists the headers every source must expose
var RequiredColumns = []string{
	ColumnAge,
	ColumnGender,
	ColumnMedicalCondition,
	ColumnAdmissionDate,
	ColumnDischargeDate,
	ColumnReadmissionStatus,
}

// DerivedColumns lists the headers appended by the transformer, in output order
var DerivedColumns = []string{
	ColumnLengthOfStay,
	ColumnAgeGroup,
	ColumnReadmitted,
}

// Age bounds accepted by the validator (inclusive)
const (
	MinAge = 0
	MaxAge = 120
)

// AgeGroup is the bucketed age category
type AgeGroup string

const (
	AgeGroupChild      AgeGroup = "0-18"
	AgeGroupYoungAdult AgeGroup = "19-35"
	AgeGroupAdult      AgeGroup = "36-60"
	AgeGroupSenior     AgeGroup = "60+"
)

// Readmission status literals
const (
	ReadmissionYes = "Yes"
	ReadmissionNo  = "No"
)

// PatientRecord is one admission row of the healthcare snapshot.
//
// Source fields are filled by the loader. AdmittedOn and DischargedOn hold the
// parsed dates, and the remaining derived fields are filled by the transformer.
type PatientRecord struct {
	Age               Null[int]    `json:"age"`
	Gender            Null[string] `json:"gender"`
	MedicalCondition  Null[string] `json:"medical_condition"`
	AdmissionDate     Null[string] `json:"admission_date"`
	DischargeDate     Null[string] `json:"discharge_date"`
	ReadmissionStatus Null[string] `json:"readmission_status"`

	// Extra holds the non-core columns, aligned with Table.ExtraColumns
	Extra []Null[string] `json:"extra,omitempty"`

	AdmittedOn       Null[time.Time] `json:"-"`
	DischargedOn     Null[time.Time] `json:"-"`
	LengthOfStayDays Null[int]       `json:"length_of_stay_days"`
	AgeGroup         Null[AgeGroup]  `json:"age_group"`
	Readmitted       Null[int]       `json:"readmitted"`
}

// HasMissingSource reports whether any source column of the record is null.
func (r *PatientRecord) HasMissingSource() bool {
	if r.Age.IsNull() || r.Gender.IsNull() || r.MedicalCondition.IsNull() ||
		r.AdmissionDate.IsNull() || r.DischargeDate.IsNull() || r.ReadmissionStatus.IsNull() {
		return true
	}
	for _, v := range r.Extra {
		if v.IsNull() {
			return true
		}
	}
	return false
}
