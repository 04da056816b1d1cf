package source

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
	"golang.org/x/crypto/ssh"
)

// SSH runs commands on a remote host, typically the scheduler head node.
// The connection is opened on first use and kept for later cycles; a
// broken connection is dropped and redialled on the next Run.
type SSH struct {
	// Host is hostname, user@hostname[:port] or an SSH config alias.
	Host string

	// Dir is the remote directory commands run in.
	Dir string

	// DialTimeout bounds connecting and the handshake.
	DialTimeout time.Duration

	SSHConfigPath  string
	KnownHostsPath string

	log logger.Logger

	// configFor builds the client config; replaced in tests.
	configFor func(st settings) (*ssh.ClientConfig, error)

	mu     sync.Mutex
	client *ssh.Client

	// agentConn is kept across redials and closed by Close.
	agentConn net.Conn
}

// NewSSH creates a runner for host using ~/.ssh/config and
// ~/.ssh/known_hosts.
func NewSSH(host, dir string, dialTimeout time.Duration, log logger.Logger) *SSH {
	s := &SSH{
		Host:           host,
		Dir:            dir,
		DialTimeout:    dialTimeout,
		SSHConfigPath:  DefaultSSHConfigPath(),
		KnownHostsPath: filepath.Join(homeDir(), ".ssh", "known_hosts"),
		log:            log,
	}
	s.configFor = func(st settings) (*ssh.ClientConfig, error) {
		return clientConfig(st, s.KnownHostsPath, s.agentAuth())
	}
	return s
}

func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	st := resolveSettings(s.Host, s.SSHConfigPath)
	cfg, err := s.configFor(st)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = s.DialTimeout

	dialer := net.Dialer{Timeout: s.DialTimeout}
	addr := st.address()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", s.Host, addr),
			"Make sure the host is reachable: ssh "+s.Host)
	}

	if s.DialTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.DialTimeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", s.Host),
			"Check your keys are loaded (ssh-add -l) and the host key is known.")
	}
	_ = conn.SetDeadline(time.Time{})

	s.client = ssh.NewClient(sshConn, chans, reqs)
	s.log.Debug("connected to %s (%s)", s.Host, addr)
	return s.client, nil
}

// agentAuth reuses the open agent connection, dialling one if needed. An
// agent without keys is closed so the next connect asks again.
func (s *SSH) agentAuth() ssh.AuthMethod {
	if s.agentConn == nil {
		if s.agentConn = dialAgent(); s.agentConn == nil {
			return nil
		}
	}
	if m := agentAuth(s.agentConn); m != nil {
		return m
	}
	s.closeAgent()
	return nil
}

func (s *SSH) closeAgent() {
	if s.agentConn != nil {
		_ = s.agentConn.Close()
		s.agentConn = nil
	}
}

func (s *SSH) drop() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}

// Run executes command in Dir on the remote host.
func (s *SSH) Run(ctx context.Context, command string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		s.drop()
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create SSH session",
			"The connection will be reopened next cycle.")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(remoteCommand(s.Dir, command)) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		// The session may be wedged along with the connection.
		s.drop()
		return nil, errors.WrapWithCode(ctx.Err(), errors.ErrSource,
			fmt.Sprintf("%s on %s didn't finish in time", command, s.Host),
			"Raise source.timeout or check why the command hangs.")
	}

	logStderr(s.log, command, stderr.Bytes())
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return nil, exitFailure(command, exitErr.ExitStatus(), stderr.Bytes())
		}
		s.drop()
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Lost the connection to %s running %s", s.Host, command), "")
	}
	return stdout.Bytes(), nil
}

// Close drops the connection and the agent connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop()
	s.closeAgent()
	return nil
}

func remoteCommand(dir, command string) string {
	if dir == "" || dir == "." {
		return command
	}
	return "cd " + shellQuote(dir) + " && " + command
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
