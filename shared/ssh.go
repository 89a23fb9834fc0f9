package shared

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig carries everything needed to reach the freshly launched
// instances: the key pair material generated for this run and the dial
// retry budget. Instances take a while to accept connections after
// entering the running state, hence the generous attempt count.
type SSHConfig struct {
	Signer       ssh.Signer
	DialAttempts int
	DialTimeout  time.Duration
	RetryDelay   time.Duration
}

// NewSSHConfig parses the PEM key material into a signer with the default
// retry budget.
func NewSSHConfig(keyMaterial string) (*SSHConfig, error) {
	signer, err := ssh.ParsePrivateKey([]byte(keyMaterial))
	if err != nil {
		return nil, ReturnLogError("failed to parse private key: %w", err)
	}

	return &SSHConfig{
		Signer:       signer,
		DialAttempts: 50,
		DialTimeout:  10 * time.Second,
		RetryDelay:   5 * time.Second,
	}, nil
}

// RunCommandOnNode executes a command on the node over SSH, dialing a fresh
// connection with retries.
func (c *SSHConfig) RunCommandOnNode(cmd, user, ip string) (string, error) {
	if cmd == "" {
		return "", ReturnLogError("cmd should not be empty")
	}
	if ip == "" {
		return "", ReturnLogError("ip address is empty")
	}

	conn, err := c.dialWithRetry(user, ip+":22")
	if err != nil {
		return "", ReturnLogError("failed to configure SSH: %v", err)
	}
	defer conn.Close()

	stdout, stderr, err := runsshCommand(cmd, conn)
	if err != nil {
		return "", fmt.Errorf(
			"command: %s failed on run ssh: %s with error: %s: %w",
			cmd,
			ip,
			strings.TrimSpace(stderr),
			err,
		)
	}

	return stdout, nil
}

func (c *SSHConfig) dialWithRetry(user, host string) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(c.Signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.DialTimeout,
	}

	var lastErr error
	for attempt := 1; attempt <= c.DialAttempts; attempt++ {
		conn, err := ssh.Dial("tcp", host, cfg)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		LogLevel("debug", "SSH dial %s attempt %d/%d failed: %v", host, attempt, c.DialAttempts, err)
		if attempt < c.DialAttempts {
			time.Sleep(c.RetryDelay)
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", c.DialAttempts, lastErr)
}

func runsshCommand(cmd string, conn *ssh.Client) (stdoutStr, stderrStr string, err error) {
	session, err := conn.NewSession()
	if err != nil {
		return "", "", ReturnLogError("failed to create session: %w", err)
	}
	defer session.Close()

	var stdoutBuf bytes.Buffer
	var stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	errssh := session.Run(cmd)
	stdoutStr = stdoutBuf.String()
	stderrStr = stderrBuf.String()

	if errssh != nil {
		return "", stderrStr, errssh
	}

	return stdoutStr, stderrStr, nil
}
