package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// PublicKey is a parsed OpenSSH public key
type PublicKey struct {
	// Authorized is the key in authorized_keys format, without trailing newline.
	Authorized string
	Comment    string
	// Fingerprint is the MD5 colon-hex form DigitalOcean uses to identify keys.
	Fingerprint string
	// SHA256 is the fingerprint form printed by modern ssh-keygen.
	SHA256 string
}

// KeyPair represents an SSH key pair on disk
type KeyPair struct {
	PrivateKeyPath string
	PublicKeyPath  string
	PublicKey      *PublicKey
}

// LoadPublicKey reads an authorized_keys style public key file.
func LoadPublicKey(path string) (*PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	return ParsePublicKey(data)
}

// ParsePublicKey parses a single authorized_keys line.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	pub, comment, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return newPublicKey(pub, comment), nil
}

// Fingerprint returns the MD5 fingerprint of an authorized_keys line.
func Fingerprint(authorized string) (string, error) {
	pk, err := ParsePublicKey([]byte(authorized))
	if err != nil {
		return "", err
	}
	return pk.Fingerprint, nil
}

// LoadSigner loads a private key for authenticating SSH sessions
func LoadSigner(privateKeyPath string) (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// GetOrGenerateKeyPair returns the key pair at privateKeyPath, creating a new
// ed25519 pair when the private key does not exist yet. A missing public key
// next to an existing private key is derived from it.
func GetOrGenerateKeyPair(privateKeyPath, comment string) (*KeyPair, error) {
	publicKeyPath := privateKeyPath + ".pub"

	if _, err := os.Stat(privateKeyPath); err == nil {
		if pk, err := LoadPublicKey(publicKeyPath); err == nil {
			return &KeyPair{PrivateKeyPath: privateKeyPath, PublicKeyPath: publicKeyPath, PublicKey: pk}, nil
		}
		return derivePublicKey(privateKeyPath, publicKeyPath, comment)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat private key: %w", err)
	}

	return generateKeyPair(privateKeyPath, publicKeyPath, comment)
}

func generateKeyPair(privateKeyPath, publicKeyPath, comment string) (*KeyPair, error) {
	if err := os.MkdirAll(filepath.Dir(privateKeyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(privKey, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	if err := os.WriteFile(privateKeyPath, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to generate public key: %w", err)
	}
	return writePublicKey(privateKeyPath, publicKeyPath, sshPub, comment)
}

func derivePublicKey(privateKeyPath, publicKeyPath, comment string) (*KeyPair, error) {
	signer, err := LoadSigner(privateKeyPath)
	if err != nil {
		return nil, err
	}
	return writePublicKey(privateKeyPath, publicKeyPath, signer.PublicKey(), comment)
}

func writePublicKey(privateKeyPath, publicKeyPath string, pub ssh.PublicKey, comment string) (*KeyPair, error) {
	pk := newPublicKey(pub, comment)
	if err := os.WriteFile(publicKeyPath, []byte(pk.line()+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}
	return &KeyPair{
		PrivateKeyPath: privateKeyPath,
		PublicKeyPath:  publicKeyPath,
		PublicKey:      pk,
	}, nil
}

func newPublicKey(pub ssh.PublicKey, comment string) *PublicKey {
	return &PublicKey{
		Authorized:  strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))),
		Comment:     comment,
		Fingerprint: ssh.FingerprintLegacyMD5(pub),
		SHA256:      ssh.FingerprintSHA256(pub),
	}
}

// line is the authorized_keys line including the comment.
func (k *PublicKey) line() string {
	if k.Comment == "" {
		return k.Authorized
	}
	return k.Authorized + " " + k.Comment
}

// String returns the key as it should be uploaded to the provider.
func (k *PublicKey) String() string {
	return k.line()
}

// Cleanup removes the key files
func (kp *KeyPair) Cleanup() error {
	if err := os.Remove(kp.PrivateKeyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove private key: %w", err)
	}
	if err := os.Remove(kp.PublicKeyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove public key: %w", err)
	}
	return nil
}
