package backup

import "errors"

// Database-level failures abort one database; the run moves on to the next.
var (
	ErrOutputDir       = errors.New("cannot prepare output directory")
	ErrConnect         = errors.New("cannot connect to server")
	ErrListCollections = errors.New("cannot list collections")
)

// Collection-level failures abort one collection; the database loop continues.
var (
	ErrUnsafeName    = errors.New("name cannot be used as a file name")
	ErrToolExecution = errors.New("export tool failed")
	ErrIntermediate  = errors.New("cannot read intermediate export")
	ErrMalformedLine = errors.New("malformed document line")
	ErrWrite         = errors.New("cannot write artifact")
)
