package control

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dropletup/internal/logging"
	sshkeys "dropletup/internal/ssh"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// portPollInterval is the delay between TCP probes of the SSH port.
var portPollInterval = 5 * time.Second

// SSH represents an SSH connection and provides methods for remote operations
type SSH struct {
	client       *ssh.Client
	sftpClient   *sftp.Client
	host         string
	user         string
	instanceName string
}

// escapeNewlines escapes newline characters for proper log formatting
func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

// safeClose safely closes a resource and logs any errors
func safeClose(name string, closer func() error) {
	if err := closer(); err != nil {
		logging.Logger().Warn("failed to close resource",
			zap.String("resource", name),
			zap.Error(err))
	}
}

// Dial waits for the SSH port, then opens SSH and SFTP sessions.
func Dial(ctx context.Context, config Config) (*SSH, error) {
	config = config.withDefaults()
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))

	waitCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := waitForPort(waitCtx, addr, portPollInterval); err != nil {
		return nil, fmt.Errorf("SSH not available after %v: %w", config.Timeout, err)
	}

	if config.PrivateKeyPath == "" {
		return nil, fmt.Errorf("private key path must be provided")
	}
	signer, err := sshkeys.LoadSigner(config.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // host key of a brand new droplet is unknown
		Timeout:         config.SSHTimeout,
	}

	client, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}

	logging.Logger().Info("SSH connection established",
		zap.String("user", config.User),
		zap.String("host", config.Host),
		zap.String("instance_name", config.InstanceName))

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		safeClose("SSH client", client.Close)
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	return &SSH{
		client:       client,
		sftpClient:   sftpClient,
		host:         config.Host,
		user:         config.User,
		instanceName: config.InstanceName,
	}, nil
}

// Close closes the SFTP and SSH connections
func (s *SSH) Close() error {
	if s.sftpClient != nil {
		safeClose("SFTP client", s.sftpClient.Close)
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// GetInstanceName returns the droplet name
func (s *SSH) GetInstanceName() string {
	return s.instanceName
}

// Run executes a command on the remote host
func (s *SSH) Run(command string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer safeClose("SSH session", session.Close)

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(command)

	logging.Logger().Info("Command executed",
		zap.String("command", logging.Truncate(command)),
		zap.String("host", s.host),
		zap.String("instance_name", s.instanceName),
		zap.String("stdout", escapeNewlines(logging.Truncate(stdout.String()))),
		zap.String("stderr", escapeNewlines(logging.Truncate(stderr.String()))),
		zap.Bool("success", err == nil))

	if err != nil {
		return stdout.String(), fmt.Errorf("command %q failed: %w", command, err)
	}
	return stdout.String(), nil
}

// Fetch copies a single remote file to localPath and returns the bytes written
func (s *SSH) Fetch(remotePath, localPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create local directory: %w", err)
	}

	remoteFile, err := s.sftpClient.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open remote file: %w", err)
	}
	defer safeClose("remote file", remoteFile.Close)

	localFile, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file: %w", err)
	}
	defer safeClose("local file", localFile.Close)

	n, err := localFile.ReadFrom(remoteFile)
	if err != nil {
		return 0, fmt.Errorf("failed to copy file content: %w", err)
	}

	logging.Logger().Info("File fetched using SFTP",
		zap.String("remote_path", remotePath),
		zap.String("local_path", localPath),
		zap.String("host", s.host),
		zap.Int64("size_bytes", n))

	return n, nil
}

// waitForPort probes addr until a TCP connection succeeds or ctx ends
func waitForPort(ctx context.Context, addr string, interval time.Duration) error {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			if closeErr := conn.Close(); closeErr != nil {
				logging.Logger().Debug("failed to close connection test",
					zap.String("addr", addr),
					zap.Error(closeErr))
			}
			return nil
		}

		logging.Logger().Debug("SSH port not reachable yet",
			zap.String("addr", addr),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("port %s not reachable: %w", addr, ctx.Err())
		case <-ticker.C:
		}
	}
}
