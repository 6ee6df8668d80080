package sink

import "github.com/cockroachdb/errors"

var (
	// ErrOpenSink indicates a failure to open or initialize a sink.
	ErrOpenSink = errors.New("sink: open failed")
	// ErrWriteSink indicates a failure while writing a record.
	ErrWriteSink = errors.New("sink: write failed")
	// ErrRotateSink indicates a failure while rotating an output file.
	ErrRotateSink = errors.New("sink: rotate failed")
)
