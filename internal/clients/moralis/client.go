// Package moralis resolves the current owner of an NFT through the Moralis
// deep index API.
package moralis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/longtails/freemasons/internal/config"
	"github.com/tidwall/gjson"
)

var ErrMalformedResponse = errors.New("moralis: malformed owners response")

// OwnerResult is the outcome of an owner lookup. Found is false when the API
// answered but listed no owner.
type OwnerResult struct {
	Status int
	Owner  string
	Found  bool
}

type Client struct {
	baseURL    string
	apiKey     string
	chain      string
	httpClient *http.Client
}

func NewClient(cfg *config.MoralisConfig) *Client {
	chain := cfg.Chain
	if chain == "" {
		chain = "eth"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		chain:      chain,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// GetOwner looks up the owner of contractAddress/tokenID. A non-200 answer is
// reported through Status, not as an error.
func (c *Client) GetOwner(ctx context.Context, contractAddress, tokenID string) (*OwnerResult, error) {
	apiURL := fmt.Sprintf("%s/nft/%s/%s/owners?chain=%s&format=decimal",
		c.baseURL, url.PathEscape(contractAddress), url.PathEscape(tokenID), url.QueryEscape(c.chain))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moralis owners request: %w", err)
	}
	defer resp.Body.Close()

	result := &OwnerResult{Status: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		return result, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("moralis owners body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedResponse
	}

	owner := gjson.GetBytes(body, "result.0.owner_of")
	if owner.Exists() && owner.String() != "" {
		result.Owner = owner.String()
		result.Found = true
	}
	return result, nil
}
