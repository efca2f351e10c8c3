package errs

// Error codes. 1xxx request problems, 15xx infrastructure.
const (
	ServerInternalError = 500

	AuthenticationErrCode = 1001
	AuthorizationErrCode  = 1002
	ValidationErrCode     = 1003
	NotFoundErrCode       = 1004

	TransientInfraErrCode = 1500
)

var (
	ErrAuthentication = NewCodeError(AuthenticationErrCode, "AuthenticationError")
	ErrAuthorization  = NewCodeError(AuthorizationErrCode, "AuthorizationError")
	ErrValidation     = NewCodeError(ValidationErrCode, "ValidationError")
	ErrNotFound       = NewCodeError(NotFoundErrCode, "NotFoundError")

	// ErrTransientInfra marks store/queue/transport unavailability.
	// Callers may retry; the job queue retries with backoff.
	ErrTransientInfra = NewCodeError(TransientInfraErrCode, "TransientInfraError")

	ErrInternal = NewCodeError(ServerInternalError, "InternalError")
)

// IsTransient reports whether err is a retryable infrastructure error.
func IsTransient(err error) bool {
	return ErrTransientInfra.Is(err)
}
