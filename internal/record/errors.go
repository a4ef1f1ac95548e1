package record

import "fmt"

// MalformedRecordError reports an input line that could not be parsed into
// a valid record. It is recoverable: the caller may skip the line, count
// it, and continue.
type MalformedRecordError struct {
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at line %d: %s", e.Line, e.Reason)
}
