package idempotency

import "testing"

func TestFingerprint_StableAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"name": "prod", "size": 3}
	b := map[string]any{"size": 3, "name": "prod"}

	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint(a): %v", err)
	}
	fb, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("Fingerprint(b): %v", err)
	}
	if fa != fb {
		t.Errorf("fingerprints differ for key-order-only variation: %s vs %s", fa, fb)
	}
}

func TestFingerprint_DiffersOnValueChange(t *testing.T) {
	a := map[string]any{"name": "prod", "size": 3}
	b := map[string]any{"name": "prod", "size": 4}

	fa, _ := Fingerprint(a)
	fb, _ := Fingerprint(b)
	if fa == fb {
		t.Errorf("fingerprints should differ when a value changes")
	}
}

func TestFingerprint_NestedStructures(t *testing.T) {
	a := map[string]any{"tags": []any{"a", "b"}, "nested": map[string]any{"z": 1, "a": 2}}
	b := map[string]any{"nested": map[string]any{"a": 2, "z": 1}, "tags": []any{"a", "b"}}

	fa, _ := Fingerprint(a)
	fb, _ := Fingerprint(b)
	if fa != fb {
		t.Errorf("nested map key order should not affect fingerprint")
	}
}
