package cerrors

import (
	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly   ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric           ErrorType = "GENERIC_ERROR"
	ErrorTypeTargetSelection   ErrorType = "TARGET_SELECTION_ERROR"
	ErrorTypeStatusChecks      ErrorType = "STATUS_CHECKS_ERROR"
	ErrorTypeRosterFetch       ErrorType = "ROSTER_FETCH_ERROR"
	ErrorTypeChaosInject       ErrorType = "CHAOS_INJECT_ERROR"
	ErrorTypeChaosRevert       ErrorType = "CHAOS_REVERT_ERROR"
	ErrorTypeExperimentAborted ErrorType = "EXPERIMENT_ABORTED"
	ErrorTypeTimeout           ErrorType = "TIMEOUT"
	ErrorTypePleaseReboot      ErrorType = "PLEASE_REBOOT"
	ErrorTypePleaseRebootDel   ErrorType = "PLEASE_REBOOT_DELETE"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present to failstep
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

// IsExpectedTermination reports whether err is one of the reboot notices a
// workload raises to hand its own process over to the attrition it injected.
// Those notices end the run but are not failures.
func IsExpectedTermination(err error) bool {
	switch GetErrorType(stacktrace.RootCause(err)) {
	case ErrorTypePleaseReboot, ErrorTypePleaseRebootDel:
		return true
	}
	return false
}

func GetRootCauseAndErrorCode(err error, phase string) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return Error{ErrorCode: errorType, Reason: err.Error(), Phase: phase}.Error(), errorType
	}
	if error, ok := rootCause.(Error); ok && error.Phase == "" {
		error.Phase = phase
		return error.Error(), errorType
	}
	return rootCause.Error(), errorType
}
