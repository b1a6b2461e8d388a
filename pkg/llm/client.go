package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/clawd-gateway/pkg/apperr"
)

const (
	generateTimeout = 300 * time.Second
	connectTimeout  = 10 * time.Second
	healthTimeout   = 5 * time.Second

	ssePrefix = "data: "
	sseDone   = "[DONE]"
)

// Client talks to a generation server exposing POST /generate (JSON or SSE
// depending on the stream flag) and GET /health.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Backend = (*Client)(nil)

func NewClient(baseURL string) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: generateTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	req.Stream = false
	resp, err := c.postGenerate(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, generationStatusError(resp)
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindLLMGeneration, err, "decode generate response")
	}
	return &out, nil
}

// GenerateStreaming forces stream mode and feeds each SSE data line to
// onToken until the [DONE] marker. A missing event-stream content type means
// the server fell back to a blocking response, which callers must not treat
// as a token stream.
func (c *Client) GenerateStreaming(ctx context.Context, req Request, onToken func(token string)) error {
	req.Stream = true
	resp, err := c.postGenerate(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return generationStatusError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return apperr.Errorf(apperr.KindLLMGeneration, "expected event stream, got content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		data := strings.TrimPrefix(line, ssePrefix)
		if data == sseDone {
			return nil
		}
		onToken(data)
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return apperr.Wrap(apperr.KindLLMGeneration, ctx.Err(), "stream cancelled")
		}
		return apperr.Wrap(apperr.KindLLMGeneration, err, "read token stream")
	}
	return apperr.New(apperr.KindLLMGeneration, "token stream ended without done marker")
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build health request")
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLLMUnavailable, err, "backend health check failed")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Errorf(apperr.KindLLMUnavailable, "backend health returned status %d", resp.StatusCode)
	}
	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, apperr.Wrap(apperr.KindLLMUnavailable, err, "decode health response")
	}
	return &status, nil
}

func (c *Client) postGenerate(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode generate request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build generate request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Debug().Err(err).Str("component", "llm").Str("url", c.baseURL).Msg("generate transport error")
		return nil, apperr.Wrap(apperr.KindLLMUnavailable, err, "backend unreachable")
	}
	return resp, nil
}

func generationStatusError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return apperr.Errorf(apperr.KindLLMGeneration, "backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}
