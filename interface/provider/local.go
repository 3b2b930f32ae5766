package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
)

// LocalImageProvider implements ImageProvider for exports already present on
// the local filesystem (mirror runs, tests)
type LocalImageProvider struct {
	path string
}

// Name implements ImageProvider
func (ip *LocalImageProvider) Name() string {
	return "FileSystem (" + ip.path + ")"
}

// NewLocalImageProvider creates a new ImageProvider from local storage
func NewLocalImageProvider(path string) *LocalImageProvider {
	return &LocalImageProvider{path: path}
}

// Download implements ImageProvider
func (ip *LocalImageProvider) Download(ctx context.Context, url, localPath string) error {
	src := strings.TrimPrefix(url, "file://")
	if !strings.HasPrefix(src, "/") {
		src = path.Join(ip.path, path.Base(src))
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrProductNotFound{Product: src}
		}
		return fmt.Errorf("LocalImageProvider: %w", err)
	}
	input, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("LocalImageProvider.ReadFile: %w", err)
	}
	if err := os.WriteFile(localPath, input, 0644); err != nil {
		return fmt.Errorf("LocalImageProvider.WriteFile: %w", err)
	}
	return nil
}
