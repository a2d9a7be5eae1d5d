package model

// Result codes returned synchronously by orchestration entry points. A zero
// code means the request was accepted and asynchronous work was started, not
// that the work completed.
const (
	CodeAccepted     = 0
	CodeInvalidInput = -1
	CodeNotInstalled = -2
	CodeNotReady     = -3
)

// Result is the normalized acknowledgement envelope for checkout, deploy,
// launch and cancel requests.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Accepted builds a zero-code Result with the given message.
func Accepted(message string) Result {
	return Result{Code: CodeAccepted, Message: message}
}
