package audio

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "beatsketch/internal/log"

	"github.com/dustin/go-humanize"
)

var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrUnsupportedScheme = errors.New("only http and https urls are supported")
	ErrFetch             = errors.New("could not fetch audio")
)

// Fetcher downloads and decodes WAV files over HTTP(S).
type Fetcher struct {
	Client   *http.Client
	MaxBytes int64         // 0 means DefaultMaxBytes.
	Timeout  time.Duration // 0 means no timeout beyond the context.
}

// Fetch downloads rawURL and decodes it. Failures are distinguishable with
// errors.Is: ErrInvalidURL or ErrUnsupportedScheme for a bad address,
// ErrFetch for network and status failures, ErrTooLarge for oversized
// bodies and ErrDecode or ErrUnsupportedType for bad content.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Buffer, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", strings.Join(AllowedMIMETypes, ", "))

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetch, u.Redacted(), resp.Status)
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.IBytes(uint64(resp.ContentLength)), humanize.IBytes(uint64(maxBytes)))
	}

	// Servers often mislabel WAV files, so the content type is advisory and
	// the body is sniffed instead.
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); !strings.HasPrefix(mt, "audio/") {
			applog.Warnf("Audio: %s served as %q, sniffing content", u.Redacted(), ct)
		}
	}

	applog.Debugf("Audio: Fetched %s (%s)", u.Redacted(), resp.Status)
	return Decode(resp.Body, "", maxBytes)
}
