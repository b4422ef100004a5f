package httpingest

import "testing"

func TestSplitCSVFields(t *testing.T) {
	fields := map[string]any{
		"title":    "disk usage high",
		"extra":    "disk:sda1;mount:/var",
		"no_colon": "just-a-value",
	}
	out := SplitCSVFields(fields, []string{"extra", "no_colon", "missing"})

	if out["title"] != "disk usage high" {
		t.Errorf("untouched field mutated: %v", out["title"])
	}
	if out["extra__disk"] != "sda1" {
		t.Errorf("extra__disk = %v, want sda1", out["extra__disk"])
	}
	if out["extra__mount"] != "/var" {
		t.Errorf("extra__mount = %v, want /var", out["extra__mount"])
	}
	if _, ok := out["no_colon__just-a-value"]; ok {
		t.Error("a pair with no colon should not split")
	}
	// original map must be untouched (a new map is returned).
	if _, ok := fields["extra__disk"]; ok {
		t.Error("SplitCSVFields must not mutate its input map")
	}
}

func TestSplitCSVFieldsIgnoresNonStringAndEmpty(t *testing.T) {
	fields := map[string]any{"extra": 42, "other": ""}
	out := SplitCSVFields(fields, []string{"extra", "other"})
	if len(out) != 2 {
		t.Fatalf("expected only the two original entries, got %v", out)
	}
}
