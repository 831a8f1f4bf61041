package transform

import (
	"healthetl/pkg/contracts/domain"
)

// Summarize computes the KPI summary over enriched rows. Null values are left
// out of their own mean, so rows with an unmapped readmission status count
// toward the stay average and record_count but not the rate denominator.
// A mean over no values is zero.
func Summarize(rows []domain.PatientRecord) domain.KPISummary {
	var stays, stayRows, readmitted, flagged int64
	for _, rec := range rows {
		if rec.LengthOfStayDays.Valid {
			stays += int64(rec.LengthOfStayDays.Value)
			stayRows++
		}
		if rec.Readmitted.Valid {
			readmitted += int64(rec.Readmitted.Value)
			flagged++
		}
	}

	summary := domain.KPISummary{RecordCount: len(rows)}
	if stayRows > 0 {
		summary.AverageLengthOfStayDays = roundRatio(stays, stayRows)
	}
	if flagged > 0 {
		summary.ReadmissionRatePercent = roundRatio(readmitted*100, flagged)
	}
	return summary
}

// roundRatio returns num/den rounded to two decimals, half away from zero.
// The rounding is done on integers so exact halves are never misread.
func roundRatio(num, den int64) float64 {
	if den < 0 {
		num, den = -num, -den
	}
	neg := num < 0
	if neg {
		num = -num
	}
	hundredths := (num*200 + den) / (2 * den)
	if neg {
		hundredths = -hundredths
	}
	return float64(hundredths) / 100
}
