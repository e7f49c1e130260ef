package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Wire payloads shared by both adapters.

type paramSpec struct {
	Name  string  `json:"name"`
	Shape []int64 `json:"shape"`
	DType string  `json:"dtype"`
}

type loadRequest struct {
	ModelType      string      `json:"model_type"`
	Manifest       string      `json:"manifest"`
	DType          string      `json:"dtype"`
	TensorParallel int         `json:"tensor_parallel"`
	Device         string      `json:"device,omitempty"`
	NumLayers      int         `json:"num_layers,omitempty"`
	NumParams      int64       `json:"num_params"`
	Params         []paramSpec `json:"params,omitempty"`
}

type generateRequest struct {
	InputIDs      [][]int `json:"input_ids"`
	AttentionMask [][]int `json:"attention_mask,omitempty"`
	Device        string  `json:"device,omitempty"`
	MaxNewTokens  int     `json:"max_new_tokens"`
	DoSample      bool    `json:"do_sample"`
}

type generateResponse struct {
	Sequences [][]int `json:"sequences"`
}

func newLoadRequest(spec LoadSpec) loadRequest {
	req := loadRequest{
		ModelType:      spec.ModelType,
		Manifest:       spec.ManifestPath,
		DType:          spec.DType.String(),
		TensorParallel: spec.TensorParallel,
		Device:         spec.Device,
	}
	if s := spec.Skeleton; s != nil {
		req.NumLayers = s.NumLayers
		req.NumParams = s.NumParams()
		req.Params = make([]paramSpec, 0, len(s.Params))
		for _, p := range s.Params {
			req.Params = append(req.Params, paramSpec{Name: p.Name, Shape: p.Shape, DType: p.DType.String()})
		}
	}
	return req
}

// client speaks the runtime protocol against one base URL.
type client struct {
	baseURL    string
	apiKey     string
	reqTimeout time.Duration
	http       *http.Client
}

func newClient(baseURL, apiKey string, reqTimeout time.Duration) *client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: every call carries its own context deadline.
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		reqTimeout: reqTimeout,
		http:       &http.Client{Transport: tr, Timeout: 0},
	}
}

// healthy reports whether GET /health answers 2xx within timeout.
func (c *client) healthy(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	c.auth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *client) load(ctx context.Context, spec LoadSpec) error {
	return c.post(ctx, "/load", newLoadRequest(spec), nil)
}

func (c *client) generate(ctx context.Context, b Batch, opts Options) ([][]int, error) {
	if c.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reqTimeout)
		defer cancel()
	}
	req := generateRequest{MaxNewTokens: opts.MaxNewTokens, DoSample: opts.DoSample}
	if b.InputIDs != nil {
		req.InputIDs = b.InputIDs.Data
		req.Device = b.InputIDs.Device
	}
	if b.AttentionMask != nil {
		req.AttentionMask = b.AttentionMask.Data
	}
	var out generateResponse
	if err := c.post(ctx, "/generate", req, &out); err != nil {
		return nil, err
	}
	if len(out.Sequences) != len(req.InputIDs) {
		return nil, fmt.Errorf("runtime returned %d sequences for %d inputs", len(out.Sequences), len(req.InputIDs))
	}
	return out.Sequences, nil
}

func (c *client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("runtime %s: empty response", path)
		}
		return fmt.Errorf("runtime %s: decode response: %w", path, err)
	}
	return nil
}

func (c *client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// httpEngine is an Engine backed by a runtime URL.
type httpEngine struct {
	c       *client
	info    Info
	closeFn func() error
}

func (e *httpEngine) Generate(ctx context.Context, b Batch, opts Options) ([][]int, error) {
	return e.c.generate(ctx, b, opts)
}

func (e *httpEngine) Info() Info { return e.info }

func (e *httpEngine) Close() error {
	if e.closeFn == nil {
		return nil
	}
	return e.closeFn()
}
