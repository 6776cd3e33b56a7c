// Package twitter is a minimal Twitter API v2 client for the follower graph.
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/longtails/freemasons/internal/config"
	"golang.org/x/time/rate"
)

const (
	pageSize        = 1000
	usernamesPerReq = 100
)

var ErrUnknownUsername = errors.New("twitter: username did not resolve")

// Profile is the subset of a user object the tracker stores.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// APIError is a non-200 answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitter api status %d: %s", e.StatusCode, e.Body)
}

type usersResponse struct {
	Data []Profile `json:"data"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxPages    int
}

func NewClient(cfg *config.TwitterConfig) *Client {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		bearerToken: cfg.BearerToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		maxPages:    cfg.MaxPages,
	}
}

// GetFollowers returns the accounts following userID, in API order.
func (c *Client) GetFollowers(ctx context.Context, userID string) ([]Profile, error) {
	return c.listUsers(ctx, "/users/"+url.PathEscape(userID)+"/followers")
}

// GetFollowing returns the accounts userID follows, in API order.
func (c *Client) GetFollowing(ctx context.Context, userID string) ([]Profile, error) {
	return c.listUsers(ctx, "/users/"+url.PathEscape(userID)+"/following")
}

// GetUsernameIDs resolves usernames to profiles. The result is aligned with
// the input: out[i] belongs to usernames[i]. Any unresolved username fails
// the whole call.
func (c *Client) GetUsernameIDs(ctx context.Context, usernames []string) ([]Profile, error) {
	out := make([]Profile, len(usernames))

	for start := 0; start < len(usernames); start += usernamesPerReq {
		end := min(start+usernamesPerReq, len(usernames))
		chunk := make([]string, 0, end-start)
		for _, name := range usernames[start:end] {
			chunk = append(chunk, strings.TrimPrefix(name, "@"))
		}

		var body usersResponse
		q := url.Values{"usernames": {strings.Join(chunk, ",")}}
		if err := c.get(ctx, "/users/by", q, &body); err != nil {
			return nil, err
		}

		// the API drops unknown names and does not promise input order
		byName := make(map[string]Profile, len(body.Data))
		for _, p := range body.Data {
			byName[strings.ToLower(p.Username)] = p
		}
		for i, name := range chunk {
			p, ok := byName[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownUsername, name)
			}
			out[start+i] = p
		}
	}

	return out, nil
}

func (c *Client) listUsers(ctx context.Context, path string) ([]Profile, error) {
	var out []Profile
	next := ""

	for page := 0; c.maxPages <= 0 || page < c.maxPages; page++ {
		q := url.Values{"max_results": {fmt.Sprint(pageSize)}}
		if next != "" {
			q.Set("pagination_token", next)
		}

		var body usersResponse
		if err := c.get(ctx, path, q, &body); err != nil {
			return nil, err
		}
		out = append(out, body.Data...)

		if body.Meta.NextToken == "" {
			break
		}
		next = body.Meta.NextToken
	}

	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twitter request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("twitter decode %s: %w", path, err)
	}
	return nil
}
