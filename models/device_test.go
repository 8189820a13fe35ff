package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridwatch/netpulse/models"
)

func TestNormalizeVendor(t *testing.T) {
	cases := []struct {
		in   string
		want models.VendorKind
	}{
		{"Cisco", models.VendorCisco},
		{"cisco ios-xe", models.VendorCisco},
		{"Cisco Nexus 9000", models.VendorCiscoNXOS},
		{"cisco nx-os", models.VendorCiscoNXOS},
		{"NXOS", models.VendorCiscoNXOS},
		{"Juniper Networks", models.VendorJuniper},
		{"junos", models.VendorJuniper},
		{"Palo Alto", models.VendorPaloAlto},
		{"PAN-OS", models.VendorPaloAlto},
		{"Fortinet", models.VendorFortinet},
		{"FortiGate 100F", models.VendorFortinet},
		{"Arista", models.VendorArista},
		{"Sophos", models.VendorSophos},
		{"SFOS 19", models.VendorSophos},
		{"Dell PowerConnect", models.VendorGeneric},
		{"", models.VendorGeneric},
		{"  ", models.VendorGeneric},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.NormalizeVendor(tc.in), "vendor=%q", tc.in)
	}
}

func TestIfStatusFromInt(t *testing.T) {
	assert.Equal(t, models.IfUp, models.IfStatusFromInt(1))
	assert.Equal(t, models.IfDown, models.IfStatusFromInt(2))
	assert.Equal(t, models.IfUnknown, models.IfStatusFromInt(3))
	assert.Equal(t, models.IfUnknown, models.IfStatusFromInt(0))
}

func TestOverallStatus(t *testing.T) {
	cases := []struct {
		icmp, snmp models.DeviceStatus
		want       models.DeviceStatus
	}{
		{models.StatusUp, models.StatusDown, models.StatusUp},
		{models.StatusDown, models.StatusUp, models.StatusUp},
		{models.StatusDown, models.StatusDown, models.StatusDown},
		{models.StatusDown, models.StatusUnknown, models.StatusDown},
		{models.StatusUnknown, models.StatusUnknown, models.StatusUnknown},
	}
	for _, tc := range cases {
		r := models.PollResult{ICMPStatus: tc.icmp, SNMPStatus: tc.snmp}
		assert.Equal(t, tc.want, r.OverallStatus())
	}
}
