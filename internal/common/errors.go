package common

import (
	"errors"
	"fmt"
)

// TransferKind classifies object store failures for diagnostics. Every kind is
// handled the same way by the pipeline.
type TransferKind string

const (
	TransferAccessDenied TransferKind = "access_denied"
	TransferNotFound     TransferKind = "not_found"
	TransferOther        TransferKind = "other"
)

var (
	ErrRecordNotFound = errors.New("document record not found")
	ErrNoText         = errors.New("document has no extractable text")
)

// TransferError is returned by the object store for any fetch or store failure.
type TransferError struct {
	Op     string
	Bucket string
	Key    string
	Kind   TransferKind
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s gs://%s/%s (%s): %v", e.Op, e.Bucket, e.Key, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned by status stores on read or write failure.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("status store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("status store %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ExtractionError is returned when a document cannot be read or the model never
// produced a schema-conformant report. Attempts is zero when no model call was made.
type ExtractionError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("extract %s: no valid report after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
