package submit

// Result is the binary outcome of a submission.
type Result int

const (
	Failure Result = iota
	Success
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}
	return "failure"
}

// ExitCode maps r to the process exit status: 0 for Success, 1 otherwise.
func (r Result) ExitCode() int {
	if r == Success {
		return 0
	}
	return 1
}
