// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsl

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingArtifact reports a required file that is absent, empty or
	// unreadable.
	ErrMissingArtifact = errors.New("missing artifact")

	// ErrMissingMetadata reports text that did not yield an expected value.
	ErrMissingMetadata = errors.New("missing metadata")

	// ErrUnrecognizedReport reports a status report matching neither
	// threshold template. Errors carrying it also match ErrMissingMetadata.
	ErrUnrecognizedReport = errors.New("unrecognized status report")
)

// ArtifactError names the file behind an ErrMissingArtifact.
type ArtifactError struct {
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMissingArtifact, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMissingArtifact, e.Path)
}

func (e *ArtifactError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMissingArtifact, e.Err}
	}
	return []error{ErrMissingArtifact}
}

// MetadataReason distinguishes a value that is not there from one that is
// there but unusable.
type MetadataReason string

const (
	ReasonAbsent    MetadataReason = "absent"
	ReasonMalformed MetadataReason = "malformed"
	ReasonMismatch  MetadataReason = "mismatch"
)

// MetadataError names the file and field behind an ErrMissingMetadata.
type MetadataError struct {
	Path   string
	Field  string
	Reason MetadataReason
	Detail string
	Err    error
}

func (e *MetadataError) Error() string {
	msg := fmt.Sprintf("%s: %s in %s is %s", ErrMissingMetadata, e.Field, e.Path, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *MetadataError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMissingMetadata, e.Err}
	}
	return []error{ErrMissingMetadata}
}

func absent(path, field string) error {
	return &MetadataError{Path: path, Field: field, Reason: ReasonAbsent}
}

func malformed(path, field, detail string) error {
	return &MetadataError{Path: path, Field: field, Reason: ReasonMalformed, Detail: detail}
}
