package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"healthetl/pkg/contracts/domain"
)

func enriched(stay, readmitted int) domain.PatientRecord {
	return domain.PatientRecord{
		LengthOfStayDays: domain.Some(stay),
		Readmitted:       domain.Some(readmitted),
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]domain.PatientRecord{enriched(2, 1), enriched(4, 0), enriched(6, 1)})
	assert.Equal(t, domain.KPISummary{
		AverageLengthOfStayDays: 4.00,
		ReadmissionRatePercent:  66.67,
		RecordCount:             3,
	}, got)

	assert.Equal(t, domain.KPISummary{}, Summarize(nil))
}

func TestSummarizeSkipsNullReadmitted(t *testing.T) {
	unmapped := domain.PatientRecord{LengthOfStayDays: domain.Some(10)}
	got := Summarize([]domain.PatientRecord{enriched(2, 1), unmapped, enriched(4, 0)})
	assert.Equal(t, domain.KPISummary{
		AverageLengthOfStayDays: 5.33,
		ReadmissionRatePercent:  50.00,
		RecordCount:             3,
	}, got)

	// no mapped status at all leaves the rate at zero
	got = Summarize([]domain.PatientRecord{unmapped})
	assert.Equal(t, domain.KPISummary{AverageLengthOfStayDays: 10, RecordCount: 1}, got)
}

func TestSummarizeHalfwayRounding(t *testing.T) {
	// 17/8 = 2.125 and 1/8 = 12.5% exactly
	rows := []domain.PatientRecord{enriched(3, 1)}
	for i := 0; i < 7; i++ {
		rows = append(rows, enriched(2, 0))
	}

	got := Summarize(rows)
	assert.Equal(t, 2.13, got.AverageLengthOfStayDays)
	assert.Equal(t, 12.5, got.ReadmissionRatePercent)
}

func TestRoundRatio(t *testing.T) {
	tests := []struct {
		num, den int64
		want     float64
	}{
		{17, 8, 2.13},
		{5, 8, 0.63},
		{-17, 8, -2.13},
		{-5, 8, -0.63},
		{200, 3, 66.67},
		{100, 3, 33.33},
		{1, 200, 0.01},
		{1, 201, 0.0},
		{12, 3, 4.0},
		{0, 7, 0.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, roundRatio(tt.num, tt.den), "%d/%d", tt.num, tt.den)
	}
}
