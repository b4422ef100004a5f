package httpingest

import "strings"

// SplitCSVFields applies the configured "field__subkey" splitting rule: a
// raw value like "k1:v1;k2:v2" becomes field__k1=v1, field__k2=v2 entries.
// Applied identically for HTTP and SNMP ingress.
func SplitCSVFields(fields map[string]any, csvFields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, field := range csvFields {
		raw, ok := out[field].(string)
		if !ok || raw == "" {
			continue
		}
		for _, pair := range strings.Split(raw, ";") {
			kv := strings.SplitN(pair, ":", 2)
			if len(kv) != 2 {
				continue
			}
			key := strings.TrimSpace(kv[0])
			val := strings.TrimSpace(kv[1])
			if key == "" {
				continue
			}
			out[field+"__"+key] = val
		}
	}
	return out
}
