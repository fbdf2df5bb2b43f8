package scanner

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHRunner executes commands on a remote host over SSH. It implements
// CommandRunner so the same scanners observe remote hosts and local ones.
// The connection is established lazily on first use and reused until Close.
type SSHRunner struct {
	addr    string
	config  *ssh.ClientConfig
	timeout time.Duration

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHRunner creates a runner for user@addr authenticating with the
// private key at keyPath. addr may omit the port; 22 is assumed.
func NewSSHRunner(addr, user, keyPath string, timeout time.Duration) (*SSHRunner, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &SSHRunner{
		addr: addr,
		config: &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         timeout,
		},
		timeout: timeout,
	}, nil
}

// Run executes the command on the remote host
func (r *SSHRunner) Run(ctx context.Context, cmd string) (string, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if _, ok := res.err.(*ssh.ExitError); ok {
				// Non-zero exit still carries output worth parsing
				return string(res.out), nil
			}
			return "", fmt.Errorf("command %q failed: %w", cmd, res.err)
		}
		return string(res.out), nil
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	}
}

func (r *SSHRunner) connect(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}

	dialer := &net.Dialer{Timeout: r.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", r.addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, r.addr, r.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	r.client = ssh.NewClient(sshConn, chans, reqs)
	return r.client, nil
}

// Close tears down the cached connection. The runner reconnects on the next
// Run, so a flapping host does not wedge the cycle that follows.
func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
