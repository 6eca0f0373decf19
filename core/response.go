package core

// Status classifies the outcome of a handled message for the presentation
// layer. Recoverable conditions (clarifications, degraded oracle, iteration
// cap) map to StatusOK or StatusAwaitingInput, never StatusError.
type Status string

const (
	// StatusOK is a normal completed turn.
	StatusOK Status = "ok"
	// StatusAwaitingInput means the engine asked the user for a stage choice
	// or clarification.
	StatusAwaitingInput Status = "awaiting_input"
	// StatusError is an unrecoverable turn failure.
	StatusError Status = "error"
)

// Response is the envelope returned to the presentation layer. The engine
// never renders markup; Text is plain prose and Visualizations are opaque
// references the caller resolves.
type Response struct {
	Text           string   `json:"text"`
	Visualizations []string `json:"visualizations,omitempty"`
	Status         Status   `json:"status"`
}

// OK builds a plain ok response.
func OK(text string) *Response { return &Response{Text: text, Status: StatusOK} }

// AwaitingInput builds a response prompting the user for input.
func AwaitingInput(text string) *Response {
	return &Response{Text: text, Status: StatusAwaitingInput}
}

// Error builds an error response with the given text.
func Error(text string) *Response { return &Response{Text: text, Status: StatusError} }
