package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	want := strings.TrimPrefix(testKey, "0x")
	if got != want {
		t.Errorf("round trip mismatch: got %s want %s", got, want)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("expected error for wrong password")
	}
}

func TestEncryptRejectsBadKey(t *testing.T) {
	if _, err := EncryptKey("nothex", "pw"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := EncryptKey("0xabcd", "pw"); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := EncryptKey(testKey, ""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestLoadKey(t *testing.T) {
	// Raw key takes precedence and loses its prefix.
	got, err := LoadKey(KeyConfig{RawPrivateKey: testKey})
	if err != nil {
		t.Fatalf("LoadKey raw: %v", err)
	}
	if got != strings.TrimPrefix(testKey, "0x") {
		t.Errorf("LoadKey raw = %s", got)
	}

	// Encrypted file path.
	blob, err := EncryptKey(testKey, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("LoadKey encrypted: %v", err)
	}
	if got != strings.TrimPrefix(testKey, "0x") {
		t.Errorf("LoadKey encrypted = %s", got)
	}

	// No source configured.
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("expected error when no key source configured")
	}
}
