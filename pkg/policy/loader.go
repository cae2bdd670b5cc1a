package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stackgraft/stackgraft/pkg/config"
)

// LoadError reports a single malformed, missing, or oversized permission
// document. Any one LoadError aborts the whole load.
type LoadError struct {
	File   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy %s: %s: %v", e.File, e.Reason, e.Err)
	}
	return fmt.Sprintf("policy %s: %s", e.File, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader reads the fixed set of permission documents from a directory.
type Loader struct {
	Dir      string
	Expected []string
	MaxBytes int64
}

// NewLoader builds a loader with the standard expected file set.
func NewLoader(dir string) *Loader {
	return &Loader{
		Dir:      dir,
		Expected: config.ExpectedPolicyFiles(),
		MaxBytes: config.MaxPolicyBytes,
	}
}

// LoadAll reads every expected document in order. It returns no partial
// result: the first failure aborts the load with a *LoadError naming the
// offending file.
func (l *Loader) LoadAll() ([]Document, error) {
	docs := make([]Document, 0, len(l.Expected))
	for _, name := range l.Expected {
		doc, err := l.loadOne(name)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *Loader) loadOne(name string) (Document, error) {
	path := filepath.Join(l.Dir, name)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, &LoadError{File: name, Reason: "file not found", Err: err}
		}
		return Document{}, &LoadError{File: name, Reason: "unreadable", Err: err}
	}
	if info.Size() > l.MaxBytes {
		return Document{}, &LoadError{
			File:   name,
			Reason: fmt.Sprintf("document is %d bytes, ceiling is %d", info.Size(), l.MaxBytes),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, &LoadError{File: name, Reason: "unreadable", Err: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, &LoadError{File: name, Reason: "not valid JSON", Err: err}
	}
	if doc.Version == "" {
		return Document{}, &LoadError{File: name, Reason: "missing required Version field"}
	}
	if len(doc.Statement) == 0 {
		return Document{}, &LoadError{File: name, Reason: "missing required Statement list"}
	}

	doc.File = name
	doc.Name = TemplateName(name)
	return doc, nil
}
