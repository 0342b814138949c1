package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
)

// MaxContentBytes bounds a single download.
const MaxContentBytes = 64 << 20

// GatewayMirror reads through a public content gateway ({base}/ipfs/{addr}).
// When apiURL is set it also writes through the node's add endpoint.
type GatewayMirror struct {
	name   string
	base   string
	apiURL string
	client *http.Client
}

func NewGatewayMirror(name, base, apiURL string, timeout time.Duration) *GatewayMirror {
	if timeout <= 0 {
		timeout = DefaultMirrorTimeout
	}
	return &GatewayMirror{
		name:   name,
		base:   strings.TrimRight(base, "/"),
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (g *GatewayMirror) Name() string { return g.name }

func (g *GatewayMirror) Put(ctx context.Context, b []byte) (string, error) {
	if g.apiURL == "" {
		return "", ErrReadOnly
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "document")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(b); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.apiURL+"/api/v0/add?cid-version=1&raw-leaves=true&pin=true", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%s add: status %d", g.name, resp.StatusCode)
	}
	var out struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("%s add: decode: %w", g.name, err)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("%s add: empty address", g.name)
	}
	return out.Hash, nil
}

func (g *GatewayMirror) Get(ctx context.Context, addr string) ([]byte, error) {
	resp, err := g.fetch(ctx, http.MethodGet, addr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxContentBytes {
		return nil, fmt.Errorf("%s: %s exceeds %d bytes", g.name, addr, MaxContentBytes)
	}
	return b, nil
}

func (g *GatewayMirror) Has(ctx context.Context, addr string) (bool, error) {
	resp, err := g.fetch(ctx, http.MethodHead, addr)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

func (g *GatewayMirror) fetch(ctx context.Context, method, addr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.base+"/ipfs/"+addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, apperr.Wrap(apperr.ErrContentNotFound, "%s on %s", addr, g.name)
	case resp.StatusCode/100 != 2:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: status %d", g.name, resp.StatusCode)
	}
	return resp, nil
}
