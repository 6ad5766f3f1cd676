package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"cfgpush/internal/deploy"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// Prompter reads interactive answers. When the input is a terminal,
// passwords are read without echo.
type Prompter struct {
	reader *bufio.Reader
	writer io.Writer
	fd     int // -1 when the input is not a terminal
}

var _ deploy.Confirmer = (*Prompter)(nil)

// NewPrompter creates a Prompter reading from r and writing prompts to w.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	fd := -1
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Prompter{reader: bufio.NewReader(r), writer: w, fd: fd}
}

// Line prints prompt and returns one trimmed line of input. If EOF occurs
// after some input was read, the partial line is returned.
func (p *Prompter) Line(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.writer, prompt); err != nil {
		return "", err
	}
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// LineDefault is Line with a value used when the answer is empty.
func (p *Prompter) LineDefault(prompt, def string) (string, error) {
	if def != "" {
		prompt = fmt.Sprintf("%s [%s]", prompt, def)
	}
	v, err := p.Line(prompt + ": ")
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

// Confirm asks a yes/no question. Only "y" and "yes" accept; EOF declines.
func (p *Prompter) Confirm(prompt string) (bool, error) {
	answer, err := p.Line(prompt + " [y/N] ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Password reads a secret. On a terminal the input is not echoed.
func (p *Prompter) Password(prompt string) (string, error) {
	if p.fd < 0 {
		return p.Line(prompt)
	}
	if _, err := fmt.Fprint(p.writer, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(p.fd)
	fmt.Fprintln(p.writer)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}
