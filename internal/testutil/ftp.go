package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cfgpush/internal/config"
	"cfgpush/internal/deploy"
)

// ErrRemoteMissing is returned by FakeConn.Retrieve for unknown paths.
var ErrRemoteMissing = errors.New("550 file not found")

// FakeServer is an in-memory remote file tree shared by every FakeConn a
// FakeDialer opens. Safe for concurrent use.
type FakeServer struct {
	mu    sync.Mutex
	files map[string][]byte

	// Failure injection, keyed by remote path.
	retrieveErr map[string]error
	storeErr    map[string]error

	stores    []string
	retrieves []string

	// Dir is the working directory reported after login.
	Dir string
}

func NewFakeServer() *FakeServer {
	return &FakeServer{
		files:       make(map[string][]byte),
		retrieveErr: make(map[string]error),
		storeErr:    make(map[string]error),
		Dir:         "/",
	}
}

// AddFile places content at remotePath.
func (s *FakeServer) AddFile(remotePath string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[remotePath] = append([]byte(nil), content...)
}

// File returns the content at remotePath.
func (s *FakeServer) File(remotePath string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[remotePath]
	return b, ok
}

// FailRetrieve makes every Retrieve of remotePath fail with err.
func (s *FakeServer) FailRetrieve(remotePath string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrieveErr[remotePath] = err
}

// FailStore makes every Store to remotePath fail with err.
func (s *FakeServer) FailStore(remotePath string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeErr[remotePath] = err
}

// Stores returns the remote paths stored so far, in order.
func (s *FakeServer) Stores() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stores...)
}

// Retrieves returns the remote paths retrieved so far, in order.
func (s *FakeServer) Retrieves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.retrieves...)
}

// FakeConn is a deploy.Conn backed by a FakeServer.
type FakeConn struct {
	server *FakeServer

	mu     sync.Mutex
	closes int
}

var _ deploy.Conn = (*FakeConn)(nil)

func (c *FakeConn) Retrieve(remotePath string, w io.Writer) error {
	c.server.mu.Lock()
	c.server.retrieves = append(c.server.retrieves, remotePath)
	err := c.server.retrieveErr[remotePath]
	content, ok := c.server.files[remotePath]
	c.server.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("RETR %s: %w", remotePath, ErrRemoteMissing)
	}
	_, err = w.Write(content)
	return err
}

func (c *FakeConn) Store(remotePath string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}

	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.server.storeErr[remotePath]; err != nil {
		return err
	}
	c.server.stores = append(c.server.stores, remotePath)
	c.server.files[remotePath] = buf.Bytes()
	return nil
}

func (c *FakeConn) CurrentDir() (string, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.Dir, nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// Closes returns how many times Close was called.
func (c *FakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// FakeDialer is a deploy.Dialer that hands out FakeConns to a shared
// FakeServer and records every dial.
type FakeDialer struct {
	Server *FakeServer

	// Err, when set, makes every Dial fail.
	Err error

	mu    sync.Mutex
	conns []*FakeConn
}

var _ deploy.Dialer = (*FakeDialer)(nil)

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{Server: NewFakeServer()}
}

func (d *FakeDialer) Dial(ctx context.Context, profile config.Profile) (deploy.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &FakeConn{server: d.Server}
	d.conns = append(d.conns, c)
	return c, nil
}

// Dials returns the number of successful dials.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Conns returns every connection opened so far.
func (d *FakeDialer) Conns() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeConn(nil), d.conns...)
}
