package snmpingest

// knownOIDs is a small catalog translating well-known varbind OIDs into the
// field names the ingest pipeline expects, standing in for a full MIB
// compiler: this correlator only ever needs a handful of trap fields, not a
// general-purpose MIB browser.
var knownOIDs = map[string]string{
	".1.3.6.1.6.3.1.1.4.1.0": "snmp_trap_oid",
	".1.3.6.1.2.1.1.3.0":     "sysUpTime",
	".1.3.6.1.4.1.0.1":       "title",
	".1.3.6.1.4.1.0.2":       "event_type",
	".1.3.6.1.4.1.0.3":       "asset_unique_id",
	".1.3.6.1.4.1.0.4":       "level",
}

// mibName resolves an OID to a field name, falling back to the raw OID
// (with leading dot stripped) for anything outside the known catalog so the
// value is still captured under task_data rather than silently dropped.
func mibName(oid string) string {
	if name, ok := knownOIDs[oid]; ok {
		return name
	}
	return "oid_" + trimLeadingDot(oid)
}

func trimLeadingDot(oid string) string {
	if len(oid) > 0 && oid[0] == '.' {
		return oid[1:]
	}
	return oid
}
