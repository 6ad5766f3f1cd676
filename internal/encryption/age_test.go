package encryption

import (
	"bytes"
	"io"
	"testing"

	"cfgpush/internal/config"
)

func newTestAgeEncryptor(t *testing.T) (*AgeEncryptor, string) {
	t.Helper()
	identity, recipient, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}
	e, err := NewAgeEncryptor(recipient)
	if err != nil {
		t.Fatalf("NewAgeEncryptor() error = %v", err)
	}
	return e, identity
}

func encrypt(t *testing.T, e interface {
	Encrypt(io.Writer) (io.WriteCloser, error)
}, input []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := e.Encrypt(&buf)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := w.Write(input); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

func TestAgeEncryptor_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte(`{"raid": true}`)},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, identity := newTestAgeEncryptor(t)
			encrypted := encrypt(t, e, tt.input)

			if len(tt.input) > 0 && bytes.Equal(encrypted, tt.input) {
				t.Error("encrypted output is identical to plaintext")
			}

			var decrypted bytes.Buffer
			if err := Decrypt(bytes.NewReader(encrypted), &decrypted, []byte(identity+"\n")); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", decrypted.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_Suffix(t *testing.T) {
	t.Parallel()
	e, _ := newTestAgeEncryptor(t)
	if got := e.Suffix(); got != ".age" {
		t.Errorf("Suffix() = %q, want .age", got)
	}
}

func TestDecrypt_WrongIdentity(t *testing.T) {
	t.Parallel()

	e, _ := newTestAgeEncryptor(t)
	encrypted := encrypt(t, e, []byte("data"))

	other, _, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}
	var out bytes.Buffer
	if err := Decrypt(bytes.NewReader(encrypted), &out, []byte(other)); err == nil {
		t.Error("Decrypt() with wrong identity should return error")
	}
}

func TestNewAgeEncryptor_InvalidRecipient(t *testing.T) {
	t.Parallel()
	if _, err := NewAgeEncryptor("not-a-recipient"); err == nil {
		t.Error("NewAgeEncryptor() with garbage should return error")
	}
}

func TestNewEncryptorFromSettings(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptorFromSettings(config.BackupSettings{})
	if err != nil || enc != nil {
		t.Errorf("empty recipient: got (%v, %v), want (nil, nil)", enc, err)
	}

	_, recipient, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}
	enc, err = NewEncryptorFromSettings(config.BackupSettings{AgeRecipient: recipient})
	if err != nil {
		t.Fatalf("NewEncryptorFromSettings() error = %v", err)
	}
	if _, ok := enc.(*AgeEncryptor); !ok {
		t.Errorf("encryptor type = %T, want *AgeEncryptor", enc)
	}

	enc, err = NewEncryptorFromSettings(config.BackupSettings{AgeRecipient: "age1bogus"})
	if err == nil || enc != nil {
		t.Errorf("bad recipient: got (%v, %v), want (nil, error)", enc, err)
	}
}

func TestTestEncryptor_PrependsHeader(t *testing.T) {
	t.Parallel()
	got := encrypt(t, NewTestEncryptor(), []byte("x"))
	want := append(append([]byte{}, TestHeader...), 'x')
	if !bytes.Equal(got, want) {
		t.Errorf("Encrypt() = %q, want %q", got, want)
	}
}
