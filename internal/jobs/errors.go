package jobs

import "errors"

// エラーコード
const (
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeImageNotFound     = "IMAGE_NOT_FOUND"
	CodeDuplicateJobID    = "DUPLICATE_JOB_ID"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNoPagesProduced   = "NO_PAGES_PRODUCED"
	CodeConversionFailed  = "CONVERSION_FAILED"
	CodeInvalidInput      = "INVALID_INPUT"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateJobID    = errors.New("duplicate job id")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoPagesProduced   = errors.New("no pages produced")
)

// Error はコード付きのジョブエラーです。errors.Is で元のセンチネルと比較できます。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf は err に含まれるエラーコードを返します。
func CodeOf(err error) string {
	var jobErr *Error
	if errors.As(err, &jobErr) {
		return jobErr.Code
	}
	return ""
}
