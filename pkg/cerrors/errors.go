package cerrors

import (
	"encoding/json"
)

type Error struct {
	Source    string    `json:"source,omitempty"`
	ErrorCode ErrorType `json:"errorCode,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Target    string    `json:"target,omitempty"`
}

func (e Error) Error() string {
	return convertToJSON(e)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	if e.ErrorCode == "" {
		return ErrorTypeGeneric
	}
	return e.ErrorCode
}

func convertToJSON(v interface{}) string {
	out, err := json.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(out)
}

// PleaseReboot is the notice raised when the workload schedules its own
// process for reboot, either through kill-self or through a kill that caught
// the issuing client.
func PleaseReboot(source string) Error {
	return Error{Source: source, ErrorCode: ErrorTypePleaseReboot, Reason: "process has been scheduled for reboot"}
}

// PleaseRebootDelete is the variant raised when the local data files are to be
// dropped before the process comes back.
func PleaseRebootDelete(source string) Error {
	return Error{Source: source, ErrorCode: ErrorTypePleaseRebootDel, Reason: "process has been scheduled for reboot, data files will be removed"}
}
