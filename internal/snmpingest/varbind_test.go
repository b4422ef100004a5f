package snmpingest

import (
	"testing"

	"github.com/gosnmp/gosnmp"
)

func TestVarbindValue(t *testing.T) {
	cases := []struct {
		name string
		pdu  gosnmp.SnmpPDU
		want string
	}{
		{"byte slice decodes as string", gosnmp.SnmpPDU{Value: []byte("disk-01")}, "disk-01"},
		{"string passes through", gosnmp.SnmpPDU{Value: "critical"}, "critical"},
		{"integer falls back to fmt", gosnmp.SnmpPDU{Value: 42}, "42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := varbindValue(tc.pdu); got != tc.want {
				t.Errorf("varbindValue() = %q, want %q", got, tc.want)
			}
		})
	}
}
