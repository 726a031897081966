package canonicalize

import (
	"testing"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	expected := `{"a":1,"b":2,"c":3}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_ArrayOrderPreserved(t *testing.T) {
	input := map[string]interface{}{
		"seq": []interface{}{3, 1, 2},
	}

	expected := `{"seq":[3,1,2]}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalHash_KeyOrderInvariant(t *testing.T) {
	a := map[string]interface{}{"qty": 100, "region": "EU", "device": "dev-1"}
	b := map[string]interface{}{"device": "dev-1", "region": "EU", "qty": 100}

	ha, err := CanonicalHash(a)
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	hb, err := CanonicalHash(b)
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}

	if ha != hb {
		t.Errorf("hashes differ for reordered keys: %s vs %s", ha, hb)
	}
}

func TestCanonicalHash_ValueSensitive(t *testing.T) {
	a := map[string]interface{}{"qty": 100}
	b := map[string]interface{}{"qty": 101}

	ha, _ := CanonicalHash(a)
	hb, _ := CanonicalHash(b)

	if ha == hb {
		t.Error("expected different hashes for different values")
	}
}

func TestCanonicalHash_ArrayOrderSensitive(t *testing.T) {
	a := map[string]interface{}{"seq": []int{1, 2, 3}}
	b := map[string]interface{}{"seq": []int{3, 2, 1}}

	ha, _ := CanonicalHash(a)
	hb, _ := CanonicalHash(b)

	if ha == hb {
		t.Error("expected different hashes for reordered arrays")
	}
}

func TestAtomID_Format(t *testing.T) {
	id, err := AtomID("sales_volume", map[string]interface{}{"qty": 100})
	if err != nil {
		t.Fatalf("AtomID failed: %v", err)
	}

	if len(id) != len("sales_volume:")+64 {
		t.Errorf("unexpected atom ID length: %q", id)
	}
	if id[:13] != "sales_volume:" {
		t.Errorf("atom ID missing type prefix: %q", id)
	}
}
