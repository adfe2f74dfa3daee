package reranker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"ragpipe/internal/retrieval"
)

const (
	jinaURL   = "https://api.jina.ai/v1/rerank"
	cohereURL = "https://api.cohere.ai/v1/rerank"
)

var _ retrieval.Reranker = (*Client)(nil)

type Client struct {
	apiKey   string
	provider string
	client   *resty.Client
	baseURL  string
}

func NewClient(provider, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetAuthToken(apiKey),
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) Provider() string {
	return c.provider
}

// Rerank scores docs against query. Results come back in the provider's
// order, most relevant first. With no provider configured the input order is
// kept and every score is zero.
func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]retrieval.RerankResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	switch c.provider {
	case "jina":
		return c.rerank(ctx, c.endpoint(jinaURL), map[string]interface{}{
			"model":     "jina-reranker-v1-base-en",
			"query":     query,
			"documents": docs,
		}, len(docs))
	case "cohere":
		return c.rerank(ctx, c.endpoint(cohereURL), map[string]interface{}{
			"model":            "rerank-english-v3.0",
			"query":            query,
			"documents":        docs,
			"top_n":            len(docs),
			"return_documents": false,
		}, len(docs))
	}
	results := make([]retrieval.RerankResult, len(docs))
	for i := range results {
		results[i] = retrieval.RerankResult{Index: i}
	}
	return results, nil
}

func (c *Client) endpoint(def string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return def
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

func (c *Client) rerank(ctx context.Context, url string, body map[string]interface{}, n int) ([]retrieval.RerankResult, error) {
	var out rerankResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		ForceContentType("application/json").
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("%s rerank request: %w", c.provider, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s api error: %d: %s", c.provider, resp.StatusCode(), resp.String())
	}

	results := make([]retrieval.RerankResult, 0, len(out.Results))
	for _, r := range out.Results {
		if r.Index >= 0 && r.Index < n {
			results = append(results, retrieval.RerankResult{Index: r.Index, Score: r.Score})
		}
	}
	return results, nil
}
