package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	creds := Credentials{APIKey: "key-1234", APISecret: "secret-5678"}

	blob, err := Encrypt(creds, "hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(string(blob), creds.APISecret) {
		t.Fatal("ciphertext blob leaks the plaintext secret")
	}

	got, err := Decrypt(blob, "hunter2")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != creds {
		t.Fatalf("round trip = %+v, want %+v", got, creds)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := Encrypt(Credentials{APIKey: "k", APISecret: "s"}, "correct")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(blob, "wrong"); err == nil {
		t.Fatal("expected decryption failure with wrong password")
	}
}

func TestEncryptRejectsEmptyInputs(t *testing.T) {
	if _, err := Encrypt(Credentials{APIKey: "k", APISecret: "s"}, ""); err == nil {
		t.Fatal("expected error for empty password")
	}
	if _, err := Encrypt(Credentials{}, "pw"); err == nil {
		t.Fatal("expected error for empty credentials")
	}
}

func TestLoadCredentialsPrefersDirectPair(t *testing.T) {
	creds, err := LoadCredentials(CredentialConfig{APIKey: "k", APISecret: "s", EncryptedPath: "/nonexistent"})
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.APIKey != "k" || creds.APISecret != "s" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestLoadCredentialsNoSource(t *testing.T) {
	if _, err := LoadCredentials(CredentialConfig{}); err == nil {
		t.Fatal("expected error with no source configured")
	}
}
