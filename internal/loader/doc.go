// Package loader reads a healthcare snapshot into a domain.Table.
//
// Comma-delimited files are read with CSVLoader and xlsx workbooks with
// ExcelLoader; New picks one by file extension. A source that does not exist
// is reported as ErrSourceNotFound, which callers treat as the absent marker
// rather than a failure.
package loader
