package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/geoharvest/scene-downloader/service"
	"github.com/geoharvest/scene-downloader/service/log"
)

// ErrProductNotFound is an error returned when a product is not found or available
type ErrProductNotFound struct {
	Product string
}

func (e ErrProductNotFound) Error() string {
	return fmt.Sprintf("Product not found or unavailable: %s", e.Product)
}

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

func checkRedirectAndCopyAuth(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if auth, ok := via[0].Header["Authorization"]; ok {
		req.Header.Add("Authorization", auth[0])
	}
	return nil
}

// download a file with display every 5%
func download(ctx context.Context, req *grab.Request, displayPrefix string, copyAuthOnRedirect bool) error {
	client := grab.NewClient()
	if copyAuthOnRedirect {
		client.HTTPClient.CheckRedirect = checkRedirectAndCopyAuth
	}
	resp := client.Do(req)

	displayProgress(ctx, displayPrefix, resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("download[%s]: %w", req.URL(), err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case 404, 410:
			return ErrProductNotFound{Product: req.URL().String()}
		case 408, 429, 500, 501, 502, 503, 504:
			return service.MakeTemporary(err)
		default:
			return err
		}
	}
	return nil
}

// HTTPImageProvider downloads exported images over https
type HTTPImageProvider struct {
	token string
}

// NewHTTPImageProvider creates a new ImageProvider for signed export urls.
// token, if not empty, is sent as a bearer authorization (copied on redirects).
func NewHTTPImageProvider(token string) *HTTPImageProvider {
	return &HTTPImageProvider{token: token}
}

// Name implements ImageProvider
func (ip *HTTPImageProvider) Name() string {
	return "HTTP"
}

// Download implements ImageProvider
func (ip *HTTPImageProvider) Download(ctx context.Context, url, localPath string) error {
	req, err := grab.NewRequest(localPath, url)
	if err != nil {
		return fmt.Errorf("HTTPImageProvider.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)
	if ip.token != "" {
		req.HTTPRequest.Header.Set("Authorization", "Bearer "+ip.token)
	}
	if err := download(ctx, req, "HTTP:"+localPath, ip.token != ""); err != nil {
		return fmt.Errorf("HTTPImageProvider.%w", err)
	}
	return nil
}
