package types

import "testing"

func TestLookup(t *testing.T) {
	cases := []struct {
		name string
		want Type
	}{
		{"double", Double},
		{"byte", Byte},
		{"bool", Bool},
		{"byte_ptr", BytePtr},
	}
	for _, c := range cases {
		got, ok := Lookup(c.name)
		if !ok {
			t.Fatalf("Lookup(%q) failed", c.name)
		}
		if got != c.want {
			t.Errorf("Lookup(%q) expected=%v, got=%v", c.name, c.want, got)
		}
		if got.String() != c.name {
			t.Errorf("String() expected=%q, got=%q", c.name, got.String())
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("int"); ok {
		t.Errorf("Lookup(\"int\") should fail; the type universe is closed")
	}
}

func TestIsFloat(t *testing.T) {
	if !Double.IsFloat() {
		t.Errorf("double should use float arithmetic")
	}
	for _, ty := range []Type{Byte, Bool, BytePtr} {
		if ty.IsFloat() {
			t.Errorf("%s should not use float arithmetic", ty)
		}
	}
}
