package hasher

import (
	"testing"
	"testing/quick"
)

func TestContentHashKnownVectors(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tt := range tests {
		if got := HashString(tt.in); got != tt.want {
			t.Errorf("HashString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestContentHashDeterministic(t *testing.T) {
	f := func(data []byte) bool {
		return ContentHash(data) == ContentHash(append([]byte(nil), data...)) && len(ContentHash(data)) == 64
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatalf("property check failed: %v", err)
	}
}

func TestContentHashDistinct(t *testing.T) {
	if HashString("X") == HashString("Y") {
		t.Fatal("different inputs produced the same hash")
	}
}

func TestRandomID(t *testing.T) {
	a := RandomID(16)
	b := RandomID(16)
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if a == b {
		t.Error("two random ids should differ")
	}
	if got := len(RandomID(0)); got != 64 {
		t.Errorf("RandomID(0) len = %d, want 64", got)
	}
}
