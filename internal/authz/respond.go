package authz

import (
	"net/http"

	"github.com/fieldbase/fieldbase/internal/platform/httpx"
)

// Machine readable denial codes.
const (
	CodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodePermissionError         = "PERMISSION_ERROR"
)

// HTTPStatus maps the verdict's status class to an HTTP status code.
func (v Verdict) HTTPStatus() int {
	if v.Authorized {
		return http.StatusOK
	}
	switch v.Status {
	case StatusUnauthenticated:
		return http.StatusUnauthorized
	case StatusInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusForbidden
	}
}

// Code returns the denial code, or "" for allowed verdicts.
func (v Verdict) Code() string {
	if v.Authorized {
		return ""
	}
	switch v.Status {
	case StatusUnauthenticated:
		return CodeAuthenticationRequired
	case StatusInternalError:
		return CodePermissionError
	default:
		return CodeInsufficientPermissions
	}
}

// WriteDenial writes the standard denial body for v. Stack traces never leave
// the server; only the reason text is returned.
func WriteDenial(w http.ResponseWriter, v Verdict) {
	httpx.Error(w, v.HTTPStatus(), v.Code(), v.Reason)
}
