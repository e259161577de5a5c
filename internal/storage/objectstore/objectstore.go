// Package objectstore implements the Storage backend contract against an
// S3-compatible object store over signed HTTP REST calls, with DNS caching,
// retry/backoff, and a per-endpoint circuit breaker on the transport.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/storage"
)

// Config selects and authenticates against an S3-compatible bucket.
type Config struct {
	Bucket          string
	EndpointURL     string // e.g. "https://s3.us-east-1.amazonaws.com"
	Region          string
	AccessKeyID     string
	AccessKeySecret string
}

// Provider talks to an S3-compatible object store.
type Provider struct {
	cfg     Config
	client  *http.Client
	signer  *signer
	breaker *circuit.Breaker
}

// New constructs an object-store Storage provider.
func New(cfg Config) *Provider {
	return &Provider{
		cfg:    cfg,
		client: newHTTPClient(2 * time.Minute),
		signer: &signer{
			accessKeyID: cfg.AccessKeyID,
			secretKey:   cfg.AccessKeySecret,
			region:      cfg.Region,
		},
		breaker: newBreaker(),
	}
}

func (p *Provider) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.EndpointURL, p.cfg.Bucket, key)
}

// do executes req through the circuit breaker with exponential-backoff
// retry on 5xx/network failures; 4xx responses are not retried.
func (p *Provider) do(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	if !p.breaker.Ready() {
		return nil, fmt.Errorf("object store circuit open: %w", errs.ErrStorageIO)
	}

	var resp *http.Response
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	op := func() error {
		cloned := req.Clone(ctx)
		if body != nil {
			cloned.Body = io.NopCloser(bytes.NewReader(body))
		}
		r, err := p.client.Do(cloned)
		if err != nil {
			return err
		}
		if r.StatusCode >= 500 {
			_ = r.Body.Close()
			return fmt.Errorf("object store status %d", r.StatusCode)
		}
		resp = r
		return nil
	}

	err := p.breaker.Call(func() error { return backoff.Retry(op, bo) }, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageIO, err)
	}
	return resp, nil
}

func (p *Provider) put(ctx context.Context, key string, data []byte) error {
	existing, err := p.get(ctx, key)
	if err == nil {
		if bytes.Equal(existing, data) {
			return nil
		}
		return errs.ErrConflict
	} else if err != errs.ErrNotFound {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	p.signer.sign(req, data)

	resp, err := p.do(ctx, req, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: put %s returned %d", errs.ErrStorageIO, key, resp.StatusCode)
	}
	return nil
}

func (p *Provider) get(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.objectURL(key), nil)
	if err != nil {
		return nil, err
	}
	p.signer.sign(req, nil)

	resp, err := p.do(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: get %s returned %d", errs.ErrStorageIO, key, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *Provider) delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.objectURL(key), nil)
	if err != nil {
		return err
	}
	p.signer.sign(req, nil)

	resp, err := p.do(ctx, req, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	return fmt.Errorf("%w: delete %s returned %d", errs.ErrStorageIO, key, resp.StatusCode)
}

// PutTarball implements storage.Provider.
func (p *Provider) PutTarball(ctx context.Context, name, version string, data []byte) error {
	return p.put(ctx, storage.Key(name, version), data)
}

// GetTarball implements storage.Provider.
func (p *Provider) GetTarball(ctx context.Context, name, version string) ([]byte, error) {
	return p.get(ctx, storage.Key(name, version))
}

// DeleteTarball implements storage.Provider.
func (p *Provider) DeleteTarball(ctx context.Context, name, version string) error {
	return p.delete(ctx, storage.Key(name, version))
}

// PutReadme implements storage.Provider.
func (p *Provider) PutReadme(ctx context.Context, name, version string, data []byte) error {
	return p.put(ctx, storage.ReadmeKey(name, version), data)
}

// GetReadme implements storage.Provider.
func (p *Provider) GetReadme(ctx context.Context, name, version string) ([]byte, error) {
	return p.get(ctx, storage.ReadmeKey(name, version))
}

// Healthcheck retries a lightweight GET of a sentinel health object up to
// three times before reporting the backend unreachable.
func (p *Provider) Healthcheck(ctx context.Context) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		_, err := p.get(ctx, "healthcheck")
		if err == nil || err == errs.ErrNotFound {
			return nil
		}
		lastErr = err
	}
	return lastErr
}
