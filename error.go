package jsonrpc

// NewInnerError creates a new Error value describing a JSON-RPC error.
func NewInnerError(code int, message string, data interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewParsingError creates a new parsing error
func NewParsingError(id RequestId, err error, data []byte) *Response {
	return NewError(id, NewInnerError(ParseError, err.Error(), data))
}

// NewInternalError creates a new internal error
func NewInternalError(id RequestId, err error, data []byte) *Response {
	return NewError(id, NewInnerError(InternalError, err.Error(), data))
}

// NewInvalidRequest creates a new invalid request error
func NewInvalidRequest(id RequestId, err error, data []byte) *Response {
	return NewError(id, NewInnerError(InvalidRequest, err.Error(), data))
}

// NewInvalidParams creates a new invalid params error
func NewInvalidParams(id RequestId, err error, data []byte) *Response {
	return NewError(id, NewInnerError(InvalidParams, err.Error(), data))
}

// NewMethodNotFound creates a new method not found error
func NewMethodNotFound(id RequestId, err error, data []byte) *Response {
	return NewError(id, NewInnerError(MethodNotFound, err.Error(), data))
}

// NewServerError creates a generic server error (-32000).
func NewServerError(id RequestId, err error) *Response {
	return NewError(id, NewInnerError(ServerError, err.Error(), nil))
}

// NewSessionNotFound reports that the session id on the request is unknown,
// either because it was never issued or the session has since expired or
// been deleted.
func NewSessionNotFound(id RequestId, sessionID string) *Response {
	return NewError(id, NewInnerError(SessionNotFound, "session not found", sessionID))
}

// NewProcessCrashed reports that the subprocess backing a session has
// exited and could not be, or was not, restarted.
func NewProcessCrashed(id RequestId, sessionID string, cause error) *Response {
	var data interface{} = sessionID
	if cause != nil {
		data = map[string]string{"sessionId": sessionID, "cause": cause.Error()}
	}
	return NewError(id, NewInnerError(ProcessCrashed, "backing process crashed", data))
}

// NewAuthRequired reports that a request arrived without the required
// bearer token.
func NewAuthRequired(id RequestId) *Response {
	return NewError(id, NewInnerError(AuthRequired, "authentication required", nil))
}

// NewUnauthorizedErrorResponse reports that the supplied bearer token is not
// allow-listed.
func NewUnauthorizedErrorResponse(id RequestId) *Response {
	return NewError(id, NewInnerError(Unauthorized, "unauthorized", nil))
}

// NewSessionTimeoutError reports that a request timed out waiting for a
// correlated response from the backing subprocess.
func NewSessionTimeoutError(id RequestId, sessionID string) *Response {
	return NewError(id, NewInnerError(SessionTimeout, "timed out waiting for response", sessionID))
}
