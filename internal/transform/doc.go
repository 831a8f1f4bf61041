// Package transform cleans a validated table, derives the analytic columns
// and computes the per-run KPI summary.
//
// The steps run in a fixed order because row removal changes the KPI
// denominator:
//
//	1. parse admission and discharge dates
//	2. drop rows with a missing value in any source column
//	3. capitalise gender and medical condition
//	4. length of stay in whole days
//	5. age group
//	6. readmitted flag, dropping rows whose status is neither Yes nor No
//	7. KPI summary over the surviving rows
//
// KPIs are rounded to two decimals, half away from zero.
package transform
