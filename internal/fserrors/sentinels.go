package fserrors

import "errors"

// Sentinel errors named directly in the spec's error taxonomy (§7).
var (
	// ErrBadThreshold is fatal at startup: a size threshold is negative or
	// otherwise nonsensical.
	ErrBadThreshold = errors.New("bad threshold")

	// ErrFtpUnsupported is returned by the FTP driver when a directory walk
	// fails with an error that names MLSD. A server that does not advertise
	// MLSD is listed through the client library's LIST fallback and does
	// not produce this error.
	ErrFtpUnsupported = errors.New("ftp server does not support MLSD")

	// ErrArchiveTooDeep names archive nesting beyond the configured maximum
	// depth (§4.3). The analyzer logs a warning and skips such a container;
	// it does not return this error.
	ErrArchiveTooDeep = errors.New("archive nesting exceeds maximum depth")

	// ErrArchiveCorrupt names a container that cannot be parsed (§4.3). The
	// analyzer logs the extractor's own error and skips the container; it
	// does not return this error.
	ErrArchiveCorrupt = errors.New("archive is corrupt")
)
