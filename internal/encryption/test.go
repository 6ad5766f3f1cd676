package encryption

import (
	"fmt"
	"io"

	"cfgpush/internal/deploy"
)

// TestHeader is prepended to data by TestEncryptor.
var TestHeader = []byte("CFGENC\x00\x00")

// TestEncryptor is a deterministic encryptor for testing. It prepends a fixed
// 8-byte header so encrypted output differs from plaintext without any crypto.
type TestEncryptor struct{}

var _ deploy.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Encrypt(w io.Writer) (io.WriteCloser, error) {
	if _, err := w.Write(TestHeader); err != nil {
		return nil, fmt.Errorf("writing test header: %w", err)
	}
	return nopWriteCloser{w}, nil
}

func (e *TestEncryptor) Suffix() string { return ".enc" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
