package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// ErrNotFound is returned (wrapped) when the provider reports that the
// target resource no longer exists. Deleting an already-absent resource
// is treated as success by the engine.
var ErrNotFound = errors.New("resource not found")

func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// IsNotFound reports whether err indicates the resource does not exist.
// EC2 uses codes like InvalidVpcID.NotFound; EKS and Auto Scaling use
// their own conventions.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	code := apiErrorCode(err)
	switch {
	case strings.HasSuffix(code, ".NotFound"):
		return true
	case code == "ResourceNotFoundException" || code == "NotFoundException" || code == "NoSuchEntity":
		return true
	case code == "ValidationError":
		// DeleteAutoScalingGroup reports a missing group this way.
		var ae smithy.APIError
		errors.As(err, &ae)
		return strings.Contains(strings.ToLower(ae.ErrorMessage()), "not found")
	}
	return false
}

// IsThrottling reports whether err is a rate-limit response that should
// be retried after a backoff.
func IsThrottling(err error) bool {
	switch apiErrorCode(err) {
	case "Throttling", "ThrottlingException", "RequestLimitExceeded",
		"TooManyRequestsException", "RequestThrottled", "RequestThrottledException":
		return true
	}
	return false
}

// IsAccessDenied reports whether err is an authorization failure.
// These are permanent: retrying cannot help.
func IsAccessDenied(err error) bool {
	switch apiErrorCode(err) {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation",
		"UnauthorizedAccess", "AuthFailure":
		return true
	}
	return false
}

// IsPermanent reports whether err should not be retried. Authorization
// failures and malformed-request responses are permanent; throttling and
// transport errors are not.
func IsPermanent(err error) bool {
	if IsAccessDenied(err) {
		return true
	}
	code := apiErrorCode(err)
	switch {
	case code == "":
		// No API error code means a transport-level failure; transient.
		return false
	case IsThrottling(err) || IsNotFound(err):
		return false
	case strings.HasPrefix(code, "InvalidParameter") || code == "MissingParameter":
		return true
	case code == "DependencyViolation":
		// Another resource still references this one; retry after its
		// own deletion settles.
		return false
	}
	return false
}
