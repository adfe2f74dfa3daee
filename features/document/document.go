// Package document is the registry of ingested source files.
package document

import "errors"

var ErrNotFound = errors.New("document not found")
