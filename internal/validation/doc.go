// Package validation implements the integrity gate between loading and
// transformation. Validation fails fast on the first violated rule and never
// modifies the table.
package validation
