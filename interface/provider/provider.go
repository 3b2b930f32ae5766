package provider

import (
	"context"
)

// ImageProvider is the interface of an image transfer service
type ImageProvider interface {
	// Download the exported image at url to localPath
	Download(ctx context.Context, url, localPath string) error

	// Name of the provider
	Name() string
}
