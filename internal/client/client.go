package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"maze-scores/internal/constants"
	"maze-scores/internal/domain"
	"maze-scores/internal/repository"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
)

const deletePasswordHeader = "X-Delete-Password"

// APIError is a non-2xx answer from the score service.
type APIError struct {
	StatusCode int
	Status     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("score service returned %d: %s", e.StatusCode, e.Status)
}

type StatusResponse struct {
	Status   string `json:"status"`
	ScoreKey string `json:"scoreKey,omitempty"`
	Count    int64  `json:"count,omitempty"`
}

// ScoreClient talks to the score service's JSON API.
type ScoreClient struct {
	baseURL        string
	deletePassword string
	client         *fasthttp.Client
}

type Option func(*ScoreClient)

func WithDeletePassword(password string) Option {
	return func(c *ScoreClient) { c.deletePassword = password }
}

func New(baseURL string, opts ...Option) *ScoreClient {
	c := &ScoreClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &fasthttp.Client{
			MaxConnsPerHost:     64,
			ReadTimeout:         constants.ClientTimeout,
			WriteTimeout:        constants.ClientTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ScoreClient) Get(ctx context.Context, scoreKey string) (*domain.Score, error) {
	var score domain.Score
	err := c.do(ctx, fasthttp.MethodGet, "/scores/"+url.PathEscape(scoreKey), nil, nil, &score)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == fasthttp.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, scoreKey)
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (c *ScoreClient) List(ctx context.Context, filter repository.Filter) ([]domain.Score, error) {
	q := url.Values{}
	if filter.ScoreKey != "" {
		q.Set("scoreKey", filter.ScoreKey)
	}
	if filter.TeamID != "" {
		q.Set("teamId", filter.TeamID)
	}
	if filter.MazeID != "" {
		q.Set("mazeId", filter.MazeID)
	}
	path := "/scores"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw json.RawMessage
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}

	// an empty result comes back as a status object rather than an array
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return []domain.Score{}, nil
	}

	var scores []domain.Score
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %w", err)
	}
	return scores, nil
}

// Save upserts a score and reports whether it was newly inserted.
func (c *ScoreClient) Save(ctx context.Context, score *domain.Score) (bool, error) {
	if err := score.Validate(); err != nil {
		return false, err
	}
	body, err := json.Marshal(score)
	if err != nil {
		return false, fmt.Errorf("failed to encode score: %w", err)
	}

	var resp StatusResponse
	status, err := c.doStatus(ctx, fasthttp.MethodPost, "/scores", body, nil, &resp)
	if err != nil {
		return false, err
	}
	return status == fasthttp.StatusCreated, nil
}

func (c *ScoreClient) Delete(ctx context.Context, scoreKey string) (int64, error) {
	headers := map[string]string{}
	if c.deletePassword != "" {
		headers[deletePasswordHeader] = c.deletePassword
	}

	var resp StatusResponse
	if err := c.do(ctx, fasthttp.MethodDelete, "/scores/"+url.PathEscape(scoreKey), nil, headers, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

type ImportSummary struct {
	Inserted int64 `json:"inserted"`
	Updated  int64 `json:"updated"`
}

// Import saves scores concurrently, at most concurrency requests at a time.
// It stops at the first failure.
func (c *ScoreClient) Import(ctx context.Context, scores []domain.Score, concurrency int) (ImportSummary, error) {
	if concurrency <= 0 {
		concurrency = constants.ImportConcurrency
	}

	var inserted, updated atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range scores {
		score := scores[i]
		g.Go(func() error {
			isNew, err := c.Save(ctx, &score)
			if err != nil {
				return fmt.Errorf("failed to save %s: %w", score.ScoreKey(), err)
			}
			if isNew {
				inserted.Add(1)
			} else {
				updated.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	return ImportSummary{Inserted: inserted.Load(), Updated: updated.Load()}, err
}

func (c *ScoreClient) do(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) error {
	_, err := c.doStatus(ctx, method, path, body, headers, out)
	return err
}

func (c *ScoreClient) doStatus(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ClientTimeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		var sr StatusResponse
		if err := json.Unmarshal(resp.Body(), &sr); err != nil || sr.Status == "" {
			sr.Status = strings.TrimSpace(string(resp.Body()))
		}
		return status, &APIError{StatusCode: status, Status: sr.Status}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return status, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return status, nil
}
