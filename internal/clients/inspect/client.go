// Package inspect lists the top members of an NFT collection from the NFT
// Inspect service.
package inspect

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

var ErrMalformedResponse = errors.New("inspect: malformed members response")

// Member is one entry of a collection listing, in the service's ranking order.
type Member struct {
	ID       string
	Username string
	Name     string
	PfpURL   string
	Token    string // scheme:contract_address:token_id
}

// MemberListing carries the HTTP status so callers can treat a failed fetch
// as a soft failure.
type MemberListing struct {
	Status  int
	Members []Member
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg *config.InspectConfig) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) ListMembers(ctx context.Context, contractAddress string) (*MemberListing, error) {
	apiURL := fmt.Sprintf("%s/api/collections/members/%s?limit=2000&onlyNewMembers=false",
		c.baseURL, url.PathEscape(contractAddress))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inspect members request: %w", err)
	}
	defer resp.Body.Close()

	listing := &MemberListing{Status: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		return listing, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("inspect members body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedResponse
	}

	members := gjson.GetBytes(body, "members")
	if !members.IsArray() {
		return nil, ErrMalformedResponse
	}

	// ids come back as numbers or strings depending on the collection
	members.ForEach(func(_, m gjson.Result) bool {
		listing.Members = append(listing.Members, Member{
			ID:       m.Get("id").String(),
			Username: m.Get("username").String(),
			Name:     m.Get("name").String(),
			PfpURL:   m.Get("pfpUrl").String(),
			Token:    m.Get("token").String(),
		})
		return true
	})

	return listing, nil
}
