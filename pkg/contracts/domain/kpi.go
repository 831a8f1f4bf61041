package domain

// KPISummary is the flat per-run metrics document.
type KPISummary struct {
	AverageLengthOfStayDays float64 `json:"average_length_of_stay_days"`
	ReadmissionRatePercent  float64 `json:"readmission_rate_percent"`
	RecordCount             int     `json:"record_count"`
}

// CleaningReport accounts for the rows the transformer removed or flagged.
// Only the complete-case rule removes rows; unmapped readmission statuses and
// negative stays are kept and counted.
type CleaningReport struct {
	RowsIn              int `json:"rows_in"`
	DroppedIncomplete   int `json:"dropped_incomplete"`
	UnmappedReadmission int `json:"unmapped_readmission"`
	NegativeStays       int `json:"negative_stays"`
}

// RowsDropped returns the total number of removed rows.
func (c CleaningReport) RowsDropped() int {
	return c.DroppedIncomplete
}

// TransformResult is the transformer output handed to the publisher.
type TransformResult struct {
	Table   *Table         `json:"-"`
	Metrics KPISummary     `json:"metrics"`
	Report  CleaningReport `json:"report"`
}
