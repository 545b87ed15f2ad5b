package cerrors

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/palantir/stacktrace"
)

func TestIsExpectedTermination(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "please reboot",
			err:  PleaseReboot("{workloadName: machine-attrition}"),
			want: true,
		},
		{
			name: "please reboot delete",
			err:  PleaseRebootDelete("{workloadName: machine-attrition}"),
			want: true,
		},
		{
			name: "wrapped please reboot",
			err:  stacktrace.Propagate(PleaseReboot(""), "could not finish attrition loop"),
			want: true,
		},
		{
			name: "inject failure",
			err:  Error{ErrorCode: ErrorTypeChaosInject, Reason: "kill failed"},
			want: false,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("connection refused"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpectedTermination(tt.err); got != tt.want {
				t.Errorf("IsExpectedTermination() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRootCauseAndErrorCode(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		phase     string
		wantCode  ErrorType
		wantPhase string
	}{
		{
			name:      "user friendly without phase picks caller phase",
			err:       stacktrace.Propagate(Error{ErrorCode: ErrorTypeTargetSelection, Reason: "no unit matched"}, "could not select targets"),
			phase:     "ChaosInject",
			wantCode:  ErrorTypeTargetSelection,
			wantPhase: "ChaosInject",
		},
		{
			name:      "user friendly keeps own phase",
			err:       Error{ErrorCode: ErrorTypeStatusChecks, Phase: "PreChaosCheck", Reason: "roster empty"},
			phase:     "ChaosInject",
			wantCode:  ErrorTypeStatusChecks,
			wantPhase: "PreChaosCheck",
		},
		{
			name:     "non user friendly",
			err:      fmt.Errorf("dial tcp: connection refused"),
			phase:    "PreChaosCheck",
			wantCode: ErrorTypeNonUserFriendly,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, code := GetRootCauseAndErrorCode(tt.err, tt.phase)
			if code != tt.wantCode {
				t.Errorf("GetRootCauseAndErrorCode() code = %v, want %v", code, tt.wantCode)
			}
			if tt.wantPhase != "" {
				var unpacked Error
				if uerr := json.Unmarshal([]byte(reason), &unpacked); uerr != nil {
					t.Fatalf("reason is not the serialised error: %v", uerr)
				}
				if unpacked.Phase != tt.wantPhase {
					t.Errorf("GetRootCauseAndErrorCode() phase = %v, want %v", unpacked.Phase, tt.wantPhase)
				}
			}
		})
	}
}
