// Package storage provides the object storage sinks the publisher writes to.
//
// Every Sink has replace semantics: writing a key that already exists
// overwrites it, so publishing the same run twice leaves one object per key.
//
//	FileSink   - a directory tree, written atomically via temp file and rename
//	GCSSink    - a Google Cloud Storage bucket through the JSON API
//	MemorySink - an in-process map, used by tests and dry runs
package storage
