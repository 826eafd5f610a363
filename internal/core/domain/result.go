package domain

// ResultKind discriminates AnalysisResult variants.
type ResultKind int

const (
	ResultSuccess ResultKind = iota + 1
	ResultError
)

// AnalysisResult is the outcome of one analysis request. It holds exactly one
// of Success or Error.
type AnalysisResult struct {
	success *Success
	err     *Error
}

// Success carries a finished report.
type Success struct {
	Mode           AnalysisMode
	Theme          string // trend queries only
	Category       string
	Period         string // "2024-05-01" or "2024-05-01 - 2024-05-07"
	MaterialsCount int
	ChunksCount    int
	Analysis       string
	Model          string
	Materials      []Material // trend queries only
}

// Error carries a user-visible failure reason.
type Error struct {
	Message string
}

// NewSuccess wraps s into a result.
func NewSuccess(s Success) AnalysisResult {
	return AnalysisResult{success: &s}
}

// NewError builds an error result.
func NewError(message string) AnalysisResult {
	return AnalysisResult{err: &Error{Message: message}}
}

// Kind returns which variant is set. The zero value reports ResultError.
func (r AnalysisResult) Kind() ResultKind {
	if r.success != nil {
		return ResultSuccess
	}

	return ResultError
}

// AsSuccess returns the success variant.
func (r AnalysisResult) AsSuccess() (Success, bool) {
	if r.success == nil {
		return Success{}, false
	}

	return *r.success, true
}

// AsError returns the error variant. A zero AnalysisResult yields a generic error.
func (r AnalysisResult) AsError() (Error, bool) {
	if r.success != nil {
		return Error{}, false
	}

	if r.err == nil {
		return Error{Message: "empty analysis result"}, true
	}

	return *r.err, true
}
