package exporter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"healthetl/pkg/contracts/domain"
)

// TableOptions configures table encoding
type TableOptions struct {
	BOMPrefix bool
}

type cellFunc func(*domain.PatientRecord) string

// columnFuncs resolves each header name to its cell accessor
func columnFuncs(table *domain.Table, header []string) ([]cellFunc, error) {
	funcs := make([]cellFunc, len(header))
	for i, name := range header {
		switch name {
		case domain.ColumnAge:
			funcs[i] = func(r *domain.PatientRecord) string { return formatInt(r.Age) }
		case domain.ColumnGender:
			funcs[i] = func(r *domain.PatientRecord) string { return formatString(r.Gender) }
		case domain.ColumnMedicalCondition:
			funcs[i] = func(r *domain.PatientRecord) string { return formatString(r.MedicalCondition) }
		case domain.ColumnAdmissionDate:
			funcs[i] = func(r *domain.PatientRecord) string { return formatDate(r.AdmittedOn, r.AdmissionDate) }
		case domain.ColumnDischargeDate:
			funcs[i] = func(r *domain.PatientRecord) string { return formatDate(r.DischargedOn, r.DischargeDate) }
		case domain.ColumnReadmissionStatus:
			funcs[i] = func(r *domain.PatientRecord) string { return formatString(r.ReadmissionStatus) }
		case domain.ColumnLengthOfStay:
			funcs[i] = func(r *domain.PatientRecord) string { return formatInt(r.LengthOfStayDays) }
		case domain.ColumnAgeGroup:
			funcs[i] = func(r *domain.PatientRecord) string {
				if r.AgeGroup.IsNull() {
					return ""
				}
				return string(r.AgeGroup.Value)
			}
		case domain.ColumnReadmitted:
			funcs[i] = func(r *domain.PatientRecord) string { return formatInt(r.Readmitted) }
		default:
			idx := table.ExtraIndex(name)
			if idx < 0 {
				return nil, fmt.Errorf("column %q has no values", name)
			}
			funcs[i] = func(r *domain.PatientRecord) string {
				if idx >= len(r.Extra) {
					return ""
				}
				return formatString(r.Extra[idx])
			}
		}
	}
	return funcs, nil
}

// TableRecords returns the header and the fully materialised rows of table
func TableRecords(table *domain.Table) ([]string, [][]string, error) {
	header := table.Header()
	funcs, err := columnFuncs(table, header)
	if err != nil {
		return nil, nil, err
	}

	records := make([][]string, len(table.Rows))
	for i := range table.Rows {
		row := make([]string, len(funcs))
		for j, cell := range funcs {
			row[j] = cell(&table.Rows[i])
		}
		records[i] = row
	}
	return header, records, nil
}

// EncodeTable renders table as CSV with a header row
func EncodeTable(table *domain.Table, opts TableOptions) ([]byte, error) {
	if table == nil {
		return nil, fmt.Errorf("no table to encode")
	}
	header, records, err := TableRecords(table)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, WriteOptions{
		Headers:   header,
		Records:   records,
		BOMPrefix: opts.BOMPrefix,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeMetrics renders the KPI summary as JSON indented by two spaces
func EncodeMetrics(metrics domain.KPISummary) ([]byte, error) {
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics: %w", err)
	}
	return data, nil
}
