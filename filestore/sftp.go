package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPStore implements ObjectStore on a remote host over SFTP. Buckets map to
// directories below basePath.
type SFTPStore struct {
	client        *sftp.Client
	basePath      string
	publicBaseURL string
}

// SFTPConfig holds SFTP connection configuration
type SFTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string // or use KeyFile
	KeyFile       string
	HostKey       string // SSH host public key for verification
	BasePath      string
	PublicBaseURL string
}

// NewSFTPStore connects to the SFTP server and returns a store
func NewSFTPStore(config SFTPConfig) (*SFTPStore, error) {
	var auth []ssh.AuthMethod

	if config.KeyFile != "" {
		keyBytes, err := os.ReadFile(config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		key, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = []ssh.AuthMethod{ssh.PublicKeys(key)}
	} else if config.Password != "" {
		auth = []ssh.AuthMethod{ssh.Password(config.Password)}
	} else {
		return nil, fmt.Errorf("either password or key file must be provided")
	}

	var hostKeyCallback ssh.HostKeyCallback
	var err error
	if config.HostKey != "" {
		// Pin the configured host key
		hostKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(config.HostKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(hostKey)
	} else {
		hostKeyCallback, err = knownhosts.New(os.ExpandEnv("$HOME/.ssh/known_hosts"))
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	return &SFTPStore{
		client:        sftpClient,
		basePath:      config.BasePath,
		publicBaseURL: config.PublicBaseURL,
	}, nil
}

// Put writes data to bucket/key through a temp file and rename
func (s *SFTPStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	fullPath, err := s.fullPath(bucket, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := path.Dir(fullPath)
	if err := s.client.MkdirAll(dir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := fullPath + ".part"
	file, err := s.client.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", tmpPath, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		s.client.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		s.client.Remove(tmpPath)
		return err
	}
	return s.client.PosixRename(tmpPath, fullPath)
}

// Get reads the object at bucket/key
func (s *SFTPStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	fullPath, err := s.fullPath(bucket, key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := s.client.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// Exists checks if an object exists at bucket/key
func (s *SFTPStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	fullPath, err := s.fullPath(bucket, key)
	if err != nil {
		return false, err
	}
	_, err = s.client.Stat(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete deletes the object at bucket/key
func (s *SFTPStore) Delete(ctx context.Context, bucket, key string) error {
	fullPath, err := s.fullPath(bucket, key)
	if err != nil {
		return err
	}
	if err := s.client.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// PublicURL returns the URL the object is published under
func (s *SFTPStore) PublicURL(bucket, key string) string {
	return publicObjectURL(s.publicBaseURL, bucket, key)
}

// Close closes the SFTP connection
func (s *SFTPStore) Close() error {
	return s.client.Close()
}

func (s *SFTPStore) fullPath(bucket, key string) (string, error) {
	cleaned, err := cleanKey(bucket, key)
	if err != nil {
		return "", err
	}
	return path.Join(s.basePath, bucket, cleaned), nil
}
