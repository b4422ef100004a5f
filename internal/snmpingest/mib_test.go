package snmpingest

import "testing"

func TestMibNameKnownOID(t *testing.T) {
	if got := mibName(".1.3.6.1.6.3.1.1.4.1.0"); got != "snmp_trap_oid" {
		t.Errorf("mibName(trap oid) = %q, want snmp_trap_oid", got)
	}
	if got := mibName(".1.3.6.1.4.1.0.3"); got != "asset_unique_id" {
		t.Errorf("mibName(asset oid) = %q, want asset_unique_id", got)
	}
}

func TestMibNameUnknownOIDFallsBack(t *testing.T) {
	got := mibName(".1.2.3.4.5")
	want := "oid_1.2.3.4.5"
	if got != want {
		t.Errorf("mibName(unknown) = %q, want %q", got, want)
	}
}

func TestTrimLeadingDot(t *testing.T) {
	if got := trimLeadingDot(".1.2.3"); got != "1.2.3" {
		t.Errorf("trimLeadingDot(.1.2.3) = %q, want 1.2.3", got)
	}
	if got := trimLeadingDot("1.2.3"); got != "1.2.3" {
		t.Errorf("trimLeadingDot(no leading dot) = %q, want unchanged", got)
	}
	if got := trimLeadingDot(""); got != "" {
		t.Errorf("trimLeadingDot(empty) = %q, want empty", got)
	}
}
