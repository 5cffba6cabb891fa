package ident

import "testing"

func TestNormalizeVariantsCollapse(t *testing.T) {
	variants := []string{"Floor1", " floor1 ", "FLOOR1", "\tfloor1\n"}
	want := HashID("floor1")
	for _, v := range variants {
		if Normalize(v) != "floor1" {
			t.Fatalf("Normalize(%q) = %q", v, Normalize(v))
		}
		if HashID(v) != want {
			t.Fatalf("HashID(%q) != HashID(floor1)", v)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, v := range []string{"Floor1", "  a B c  ", ""} {
		once := Normalize(v)
		if Normalize(once) != once {
			t.Fatalf("Normalize not idempotent for %q", v)
		}
	}
}

func TestEmptyStringVector(t *testing.T) {
	// keccak256("") is a fixed constant.
	got := HashID("").Hex()
	want := "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got != want {
		t.Fatalf("HashID(\"\") = %s, want %s", got, want)
	}
}

func TestKeyHexRoundTrip(t *testing.T) {
	k := HashID("floor1")
	parsed, err := ParseKeyHex(k.Hex())
	if err != nil {
		t.Fatalf("ParseKeyHex: %v", err)
	}
	if parsed != k {
		t.Fatalf("round trip mismatch")
	}
	if _, err := ParseKeyHex("0x1234"); err == nil {
		t.Fatalf("expected error for short hex")
	}
}
