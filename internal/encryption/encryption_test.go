package encryption

import (
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	enc, _, err := NewEncryptor("")
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	for _, plaintext := range []string{"", "secret-api-key", strings.Repeat("x", 4096)} {
		ct, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if ct == plaintext && plaintext != "" {
			t.Error("ciphertext equals plaintext")
		}
		got, err := enc.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch: got %q", got)
		}
	}
}

func TestGeneratedKeyIsReusable(t *testing.T) {
	enc1, key, err := NewEncryptor("")
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	ct, err := enc1.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	enc2, _, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor with generated key: %v", err)
	}
	got, err := enc2.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want hello", got)
	}
}

func TestBadKey(t *testing.T) {
	if _, _, err := NewEncryptor("not-base64-and-not-32-bytes"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestDecryptGarbage(t *testing.T) {
	enc, _, err := NewEncryptor("")
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	if _, err := enc.Decrypt("!!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := enc.Decrypt("c2hvcnQ="); err == nil {
		t.Error("expected error for short ciphertext")
	}
}
