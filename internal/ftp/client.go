// Package ftp adapts github.com/jlaffaye/ftp to the deployment engine's
// connection interface.
package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"cfgpush/internal/config"
	"cfgpush/internal/deploy"
)

// ErrNotConnected is returned by operations on a client without a session.
var ErrNotConnected = errors.New("ftp: not connected")

// Client is one FTP or explicit FTPS session for a profile.
type Client struct {
	profile config.Profile
	timeout time.Duration

	mu   sync.Mutex
	conn *ftp.ServerConn
}

var _ deploy.Conn = (*Client)(nil)

// NewClient creates an unconnected client. timeout bounds the dial and
// every control-channel operation.
func NewClient(profile config.Profile, timeout time.Duration) *Client {
	return &Client{profile: profile, timeout: timeout}
}

// Addr returns host:port of the profile.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.profile.Host, strconv.Itoa(c.profile.Port))
}

// Connect dials and logs in. With TLS it negotiates AUTH TLS before login;
// the library then protects the data channel (PBSZ 0 / PROT P).
// Failures are returned as *deploy.ConnectionError.
func (c *Client) Connect(ctx context.Context) error {
	opts := []ftp.DialOption{
		ftp.DialWithTimeout(c.timeout),
		ftp.DialWithContext(ctx),
	}
	if c.profile.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         c.profile.Host,
			InsecureSkipVerify: c.profile.TLSSkipVerify,
		}))
	}

	conn, err := ftp.Dial(c.Addr(), opts...)
	if err != nil {
		return &deploy.ConnectionError{Addr: c.Addr(), Err: err}
	}
	if err := conn.Login(c.profile.Username, c.profile.Password); err != nil {
		_ = conn.Quit()
		return &deploy.ConnectionError{Addr: c.Addr(), Err: fmt.Errorf("login as %q: %w", c.profile.Username, err)}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) session() (*ftp.ServerConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// Retrieve streams the remote file into w.
func (c *Client) Retrieve(remotePath string, w io.Writer) error {
	conn, err := c.session()
	if err != nil {
		return err
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return fmt.Errorf("RETR %s: %w", remotePath, err)
	}
	_, copyErr := io.Copy(w, resp)
	// Close reads the transfer-complete reply and must always run.
	closeErr := resp.Close()
	if copyErr != nil {
		return fmt.Errorf("RETR %s: %w", remotePath, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("RETR %s: %w", remotePath, closeErr)
	}
	return nil
}

// Store uploads r to remotePath, replacing any existing file.
func (c *Client) Store(remotePath string, r io.Reader) error {
	conn, err := c.session()
	if err != nil {
		return err
	}
	if err := conn.Stor(remotePath, r); err != nil {
		return fmt.Errorf("STOR %s: %w", remotePath, err)
	}
	return nil
}

// CurrentDir returns the remote working directory.
func (c *Client) CurrentDir() (string, error) {
	conn, err := c.session()
	if err != nil {
		return "", err
	}
	dir, err := conn.CurrentDir()
	if err != nil {
		return "", fmt.Errorf("PWD: %w", err)
	}
	return dir, nil
}

// Close ends the session with QUIT, falling back to dropping the socket.
// It is idempotent and never returns an error.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		// Quit closes the underlying connection even when the QUIT reply fails.
		_ = conn.Quit()
	}
	return nil
}

// Dialer opens Clients for profiles.
type Dialer struct {
	Timeout time.Duration
}

var _ deploy.Dialer = Dialer{}

// Dial connects and logs in to profile.
func (d Dialer) Dial(ctx context.Context, profile config.Profile) (deploy.Conn, error) {
	c := NewClient(profile, d.Timeout)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
