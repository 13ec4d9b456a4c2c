package rangesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/abczzz13/cfrealip"
)

// Cloudflare publishes its edge ranges as plaintext, one CIDR per line.
const (
	DefaultV4URL = "https://www.cloudflare.com/ips-v4"
	DefaultV6URL = "https://www.cloudflare.com/ips-v6"
)

const (
	defaultFetchTimeout    = 10 * time.Second
	defaultUserAgent       = "cfrealip-rangesource/1"
	defaultMaxRetries      = 3
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultMaxBodySize     = 1 << 20
)

// Fetcher retrieves the remote v4 and v6 range lists and turns them into a
// range set.
//
// Both lists are fetched concurrently and the result is all or nothing: if
// either list fails, Fetch returns an error and no set. Transport errors,
// 429 and 5xx responses are retried with exponential backoff; other non-2xx
// responses fail immediately.
type Fetcher struct {
	client *resty.Client

	v4URL string
	v6URL string

	httpClient *http.Client
	timeout    time.Duration
	timeoutSet bool
	userAgent  string

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	maxBodySize     int64
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher) error

// WithURLs overrides the v4 and v6 list endpoints.
func WithURLs(v4URL, v6URL string) FetcherOption {
	return func(f *Fetcher) error {
		if v4URL == "" || v6URL == "" {
			return errors.New("range list URLs cannot be empty")
		}
		f.v4URL = v4URL
		f.v6URL = v6URL
		return nil
	}
}

// WithHTTPClient makes the fetcher send requests through client. The
// client's own timeout is kept unless WithTimeout is also given.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		f.httpClient = client
		return nil
	}
}

// WithTimeout bounds every single request attempt.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) error {
		if timeout <= 0 {
			return fmt.Errorf("fetch timeout must be positive, got %s", timeout)
		}
		f.timeout = timeout
		f.timeoutSet = true
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(userAgent string) FetcherOption {
	return func(f *Fetcher) error {
		f.userAgent = userAgent
		return nil
	}
}

// WithMaxRetries sets how many times a retryable failure is retried. Zero
// disables retries.
func WithMaxRetries(n uint64) FetcherOption {
	return func(f *Fetcher) error {
		f.maxRetries = n
		return nil
	}
}

// WithRetryInterval sets the first and the largest delay between retries.
func WithRetryInterval(initial, maxInterval time.Duration) FetcherOption {
	return func(f *Fetcher) error {
		if initial <= 0 || maxInterval < initial {
			return fmt.Errorf("invalid retry interval: initial=%s max=%s", initial, maxInterval)
		}
		f.initialInterval = initial
		f.maxInterval = maxInterval
		return nil
	}
}

// WithMaxBodySize caps the size of each list body.
func WithMaxBodySize(n int64) FetcherOption {
	return func(f *Fetcher) error {
		if n <= 0 {
			return fmt.Errorf("max body size must be positive, got %d", n)
		}
		f.maxBodySize = n
		return nil
	}
}

// NewFetcher creates a Fetcher for the Cloudflare endpoints unless
// WithURLs says otherwise.
func NewFetcher(opts ...FetcherOption) (*Fetcher, error) {
	f := &Fetcher{
		v4URL:           DefaultV4URL,
		v6URL:           DefaultV6URL,
		timeout:         defaultFetchTimeout,
		userAgent:       defaultUserAgent,
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		maxBodySize:     defaultMaxBodySize,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("invalid fetcher configuration: %w", err)
		}
	}

	if f.httpClient != nil {
		f.client = resty.NewWithClient(f.httpClient)
		if f.timeoutSet {
			f.client.SetTimeout(f.timeout)
		}
	} else {
		f.client = resty.New().SetTimeout(f.timeout)
	}
	if f.userAgent != "" {
		f.client.SetHeader("User-Agent", f.userAgent)
	}

	return f, nil
}

// URLs returns the v4 and v6 endpoints.
func (f *Fetcher) URLs() (v4URL, v6URL string) {
	return f.v4URL, f.v6URL
}

// Fetch retrieves both lists and builds a range set from them.
//
// The returned error always matches ErrFetch and is a *FetchError naming the
// list that failed. A list containing an invalid CIDR line fails the fetch
// with the underlying *cfrealip.RangeSetError.
func (f *Fetcher) Fetch(ctx context.Context) (*cfrealip.RangeSet, error) {
	var v4Body, v6Body string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := f.fetchList(gctx, f.v4URL)
		v4Body = body
		return err
	})
	g.Go(func() error {
		body, err := f.fetchList(gctx, f.v6URL)
		v6Body = body
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	v4Lines, v6Lines := ParseList(v4Body), ParseList(v6Body)
	// An empty family would distrust every edge of that family.
	if len(v4Lines) == 0 {
		return nil, &FetchError{URL: f.v4URL, Err: ErrEmptyRanges}
	}
	if len(v6Lines) == 0 {
		return nil, &FetchError{URL: f.v6URL, Err: ErrEmptyRanges}
	}

	set, err := cfrealip.FromLines(v4Lines, v6Lines)
	if err != nil {
		url := f.v4URL
		var setErr *cfrealip.RangeSetError
		if errors.As(err, &setErr) && setErr.Family == cfrealip.FamilyV6 {
			url = f.v6URL
		}
		return nil, &FetchError{URL: url, Err: err}
	}

	return set, nil
}

func (f *Fetcher) fetchList(ctx context.Context, url string) (string, error) {
	var body string
	operation := func() error {
		data, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return "", fetchErr
		}
		return "", &FetchError{URL: url, Err: err}
	}

	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(&FetchError{URL: url, Err: err})
		}
		return "", &FetchError{URL: url, Err: err}
	}

	raw := resp.RawBody()
	if raw == nil {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode(), Err: errors.New("empty response body")}
	}
	defer raw.Close()

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		fetchErr := &FetchError{URL: url, StatusCode: status, Err: fmt.Errorf("unexpected status %q", http.StatusText(status))}
		if status >= 500 || status == http.StatusTooManyRequests {
			return "", fetchErr
		}
		return "", backoff.Permanent(fetchErr)
	}

	data, err := io.ReadAll(io.LimitReader(raw, f.maxBodySize+1))
	if err != nil {
		return "", &FetchError{URL: url, StatusCode: status, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > f.maxBodySize {
		return "", backoff.Permanent(&FetchError{URL: url, StatusCode: status, Err: fmt.Errorf("body exceeds %d bytes", f.maxBodySize)})
	}

	return string(data), nil
}

func (f *Fetcher) newBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     f.initialInterval,
		RandomizationFactor: 0.1,
		Multiplier:          2,
		MaxInterval:         f.maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}
