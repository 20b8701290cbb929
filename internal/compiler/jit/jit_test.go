package jit

import "testing"

func TestBuiltinAddresses(t *testing.T) {
	for i, name := range builtinNames {
		if builtinAddr(i) == nil {
			t.Errorf("builtin %s has no native address", name)
		}
	}
}

func TestUnknownBuiltinAddress(t *testing.T) {
	if builtinAddr(len(builtinNames)) != nil {
		t.Errorf("out-of-range builtin index should yield nil")
	}
}
