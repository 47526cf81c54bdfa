package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor("test-master-key")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	plaintext := "sk_live_super_secret_api_key"
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext == plaintext {
		t.Fatal("Encrypt() returned plaintext unchanged")
	}

	got, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != plaintext {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	enc, _ := NewEncryptor("test-master-key")
	ciphertext, _ := enc.Encrypt("secret-value")

	tampered := []byte(ciphertext)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := enc.Decrypt(string(tampered)); err == nil {
		t.Fatal("Decrypt() expected error for tampered ciphertext, got nil")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	enc1, _ := NewEncryptor("key-one")
	enc2, _ := NewEncryptor("key-two")

	ciphertext, _ := enc1.Encrypt("secret-value")
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Fatal("Decrypt() expected error when decrypting with a foreign key, got nil")
	}
}

func TestNewEncryptorRejectsEmptySecret(t *testing.T) {
	if _, err := NewEncryptor(""); err == nil {
		t.Fatal("NewEncryptor() expected error for empty secret, got nil")
	}
}
