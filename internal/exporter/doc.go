// Package exporter serialises pipeline output for publishing.
//
// EncodeTable renders an enriched table as CSV with a header row and no index
// column. EncodeMetrics renders the KPI summary as indented JSON.
//
// Example usage:
//
//	data, err := exporter.EncodeTable(result.Table, exporter.TableOptions{})
//	if err != nil {
//		return err
//	}
//	summary, err := exporter.EncodeMetrics(result.Metrics)
package exporter
