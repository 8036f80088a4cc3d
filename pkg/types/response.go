package types

// SuccessEnvelope wraps every 2xx body as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the payload nested under "error".
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// Failure builds an error envelope. Nil details are left out of the JSON.
func Failure(code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Code: code, Message: message, Details: details}}
}
