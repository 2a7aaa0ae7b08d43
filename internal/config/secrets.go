package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretReader reads credentials from files below a root directory,
// typically a mounted secrets volume such as /run/secrets. One file per
// secret, named after the secret.
type SecretReader struct {
	root string
}

// NewSecretReader returns a reader rooted at the given directory. The
// directory must exist and be absolute.
func NewSecretReader(root string) (*SecretReader, error) {
	if root == "" {
		return nil, fmt.Errorf("secrets root is required")
	}
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("secrets root %s must be an absolute path", root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("accessing secrets root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets root %s is not a directory", root)
	}
	return &SecretReader{root: root}, nil
}

// Root returns the directory secrets are read from.
func (r *SecretReader) Root() string {
	return r.root
}

// Read returns the trimmed contents of the named secret file. An empty
// file is an error: a blank credential is never what the caller wants.
func (r *SecretReader) Read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.root, name))
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", name, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret %s is empty", name)
	}
	return secret, nil
}
