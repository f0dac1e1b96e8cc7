package middlewares

// gin context keys
const (
	CtxRequestID    = "request_id"
	CtxAuthSubject  = "auth.subject"
	CtxAuthRole     = "auth.role"
	requestIDHeader = "X-Request-Id"
)
