package topology

import (
	"testing"
)

func TestChooseAxisPriority(t *testing.T) {
	tests := []struct {
		name                                       string
		killDc, killMachine, killDatahall, killPrc bool
		want                                       KillAxis
	}{
		{"none set falls back to zone", false, false, false, false, AxisZone},
		{"datacenter only", true, false, false, false, AxisDatacenter},
		{"machine only", false, true, false, false, AxisMachine},
		{"datahall only", false, false, true, false, AxisDataHall},
		{"process only", false, false, false, true, AxisProcess},
		{"datacenter beats machine", true, true, false, false, AxisDatacenter},
		{"machine beats datahall", false, true, true, false, AxisMachine},
		{"datahall beats process", false, false, true, true, AxisDataHall},
		{"all set picks datacenter", true, true, true, true, AxisDatacenter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseAxis(tt.killDc, tt.killMachine, tt.killDatahall, tt.killPrc); got != tt.want {
				t.Errorf("ChooseAxis() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalityGet(t *testing.T) {
	l := Locality{
		ProcessID:  "p1",
		ZoneID:     "z1",
		MachineID:  "m1",
		DataHallID: "h1",
		DcID:       "dc1",
	}
	tests := []struct {
		axis KillAxis
		want string
	}{
		{AxisDatacenter, "dc1"},
		{AxisMachine, "m1"},
		{AxisDataHall, "h1"},
		{AxisProcess, "p1"},
		{AxisZone, "z1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.axis), func(t *testing.T) {
			if got := l.Get(tt.axis); got != tt.want {
				t.Errorf("Get(%v) = %v, want %v", tt.axis, got, tt.want)
			}
		})
	}
}

func TestAxisGrouped(t *testing.T) {
	for _, axis := range []KillAxis{AxisDatacenter, AxisMachine, AxisDataHall, AxisProcess} {
		if !axis.Grouped() {
			t.Errorf("expected %v to be a grouped axis", axis)
		}
	}
	if AxisZone.Grouped() {
		t.Error("expected the zone axis to target single units")
	}
}
