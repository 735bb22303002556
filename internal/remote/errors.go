package remote

// ConnectionError reports a failed call start. When the server answered with
// an explicit error message, Message carries it verbatim.
type ConnectionError struct {
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "failed to start"
	}
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SubmissionError reports a response upload that did not reach the server or
// whose reply could not be read.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return "failed to send response"
	}
	return "failed to send response: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }
