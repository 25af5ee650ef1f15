package common

// Business codes follow the HTTP-style ranges below 1000 and
// domain-partitioned ranges above.
const (
	CodeSuccess = 200

	CodeBadRequest       = 400
	CodeUnauthorized     = 401
	CodeForbidden        = 403
	CodeNotFound         = 404
	CodeMethodNotAllowed = 405
	CodeTooManyRequests  = 429
	CodeInternal         = 500
	CodeNotImplemented   = 501

	// Generic business errors (1xxx)
	CodeValidation          = 1001
	CodeDataNotFound        = 1002
	CodeDataExists          = 1003
	CodeOperationNotAllowed = 1005
	CodeConcurrentUpdate    = 1007

	// User errors (2xxx)
	CodeUserNotFound  = 2001
	CodeUserExists    = 2002
	CodeUserDisabled  = 2003
	CodeUserLocked    = 2004
	CodePasswordError = 2005
	CodeLoginRequired = 2009
	CodeTokenInvalid  = 2010

	// Recipe errors (3xxx)
	CodeRecipeNotFound = 3001
	CodeRecipeOffline  = 3003

	// Chat errors (4xxx)
	CodeSessionNotFound   = 4001
	CodeMessageNotFound   = 4003
	CodeMessageTooLong    = 4004
	CodeChatRateLimited   = 4005
	CodeAIGatewayError    = 4006
	CodeAIGatewayTimeout  = 4007
	CodeAIQuotaExceeded   = 4008
	CodeStreamOutOfOrder  = 4009

	// System errors (8xxx)
	CodeConfiguration = 8005
)
