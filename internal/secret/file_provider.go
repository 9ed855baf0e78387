package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const SecretTypeFile = "file"

// FileProvider reads secrets from files, typically mounted secret
// volumes. Trailing newlines are stripped so `echo value > file` works.
type FileProvider struct{}

func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

func (p *FileProvider) CanResolve(secretType string) bool {
	return secretType == SecretTypeFile
}

func (p *FileProvider) Resolve(_ context.Context, ref Ref) (string, error) {
	if !p.CanResolve(ref.Type) {
		return "", fmt.Errorf("file provider cannot resolve secret type: %s", ref.Type)
	}
	data, err := os.ReadFile(ref.Name)
	if err != nil {
		return "", fmt.Errorf("read secret file %s: %w", ref.Name, err)
	}
	value := strings.TrimRight(string(data), "\r\n")
	if value == "" {
		return "", fmt.Errorf("secret file %s is empty", ref.Name)
	}
	return value, nil
}

func (p *FileProvider) IsAvailable() bool {
	return true
}
