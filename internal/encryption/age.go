package encryption

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"

	"cfgpush/internal/deploy"
)

// AgeEncryptor implements deploy.Encryptor using filippo.io/age with a single
// X25519 recipient. Only the public half is ever configured; snapshots are
// decrypted offline with the matching identity.
type AgeEncryptor struct {
	recipient age.Recipient
}

var _ deploy.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor parses an "age1..." recipient string.
func NewAgeEncryptor(recipient string) (*AgeEncryptor, error) {
	r, err := age.ParseX25519Recipient(strings.TrimSpace(recipient))
	if err != nil {
		return nil, fmt.Errorf("parsing age recipient: %w", err)
	}
	return &AgeEncryptor{recipient: r}, nil
}

func (e *AgeEncryptor) Encrypt(w io.Writer) (io.WriteCloser, error) {
	encWriter, err := age.Encrypt(w, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	return encWriter, nil
}

func (e *AgeEncryptor) Suffix() string { return ".age" }

// GenerateIdentity creates a new X25519 key pair and returns the secret
// identity ("AGE-SECRET-KEY-1...") and its public recipient ("age1...").
func GenerateIdentity() (identity, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating key pair: %w", err)
	}
	return id.String(), id.Recipient().String(), nil
}

// Decrypt reads age-encrypted ciphertext from r and writes plaintext to w.
// identities holds one or more identities in the age key file format.
func Decrypt(r io.Reader, w io.Writer, identities []byte) error {
	ids, err := age.ParseIdentities(bytes.NewReader(identities))
	if err != nil {
		return fmt.Errorf("parsing identity: %w", err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no identities found")
	}

	decReader, err := age.Decrypt(r, ids...)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
