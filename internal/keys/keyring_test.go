package keys

import (
	"bytes"
	"testing"
)

func testKeys() map[string][]byte {
	return map[string][]byte{
		"k1": bytes.Repeat([]byte{0x11}, 32),
		"k2": bytes.Repeat([]byte{0x22}, 32),
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	kr, err := New("k2", testKeys())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	keyID, ct, err := kr.Seal("001122334455")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if keyID != "k2" {
		t.Errorf("keyID = %q, want active key k2", keyID)
	}
	got, err := kr.Open(keyID, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "001122334455" {
		t.Errorf("Open = %q, want original plaintext", got)
	}
}

func TestRotationKeepsOldCiphertextsReadable(t *testing.T) {
	old, _ := New("k1", testKeys())
	keyID, ct, err := old.Seal("9876543210")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// rotate: k2 becomes active, k1 retained for reads
	rotated, _ := New("k2", testKeys())
	got, err := rotated.Open(keyID, ct)
	if err != nil {
		t.Fatalf("Open after rotation: %v", err)
	}
	if got != "9876543210" {
		t.Errorf("Open = %q, want original plaintext", got)
	}
}

func TestOpenUnknownKey(t *testing.T) {
	kr, _ := New("k1", testKeys())
	_, ct, _ := kr.Seal("x")
	if _, err := kr.Open("gone", ct); err == nil {
		t.Fatal("Open with unknown key id succeeded")
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	kr, _ := New("k1", testKeys())
	keyID, ct, _ := kr.Seal("sensitive")
	tampered := []byte(ct)
	tampered[len(tampered)-5] ^= 1
	if _, err := kr.Open(keyID, string(tampered)); err == nil {
		t.Fatal("Open accepted tampered ciphertext")
	}
}
