package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mastery-tracker/internal/config"
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/domain"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

type GW2Client struct {
	baseURL     string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewGW2Client(cfg *config.Config) *GW2Client {
	return &GW2Client{
		baseURL: cfg.APIBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     cfg.BatchConcurrency * 2,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
			// batch responses for 200 achievements run well past the 4MB default
			MaxResponseBodySize: 64 << 20,
		},
		rateLimit: RateLimitInfo{
			Limit:     300,
			Remaining: 300,
			UpdatedAt: time.Now(),
		},
	}
}

func (c *GW2Client) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *GW2Client) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Rate-Limit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Rate-Limit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *GW2Client) ListAchievementIDs(ctx context.Context) ([]int, error) {
	ids, err := doRequest[[]int](ctx, c, c.baseURL+"/achievements")
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (c *GW2Client) GetAchievements(ctx context.Context, ids []int) ([]domain.Achievement, error) {
	out, err := doRequest[[]domain.Achievement](ctx, c, c.baseURL+"/achievements?ids="+joinIDs(ids))
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *GW2Client) ListCategoryIDs(ctx context.Context) ([]int, error) {
	ids, err := doRequest[[]int](ctx, c, c.baseURL+"/achievements/categories")
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (c *GW2Client) GetCategories(ctx context.Context, ids []int) ([]domain.Category, error) {
	out, err := doRequest[[]domain.Category](ctx, c, c.baseURL+"/achievements/categories?ids="+joinIDs(ids))
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *GW2Client) GetGroups(ctx context.Context) ([]domain.Group, error) {
	out, err := doRequest[[]domain.Group](ctx, c, c.baseURL+"/achievements/groups?ids=all")
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *GW2Client) GetAccountAchievements(ctx context.Context, apiKey string) ([]domain.AccountAchievement, error) {
	out, err := doRequest[[]domain.AccountAchievement](ctx, c, c.baseURL+"/account/achievements?access_token="+url.QueryEscape(apiKey))
	if err != nil {
		return nil, err
	}
	return *out, nil
}

type TokenInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (c *GW2Client) GetTokenInfo(ctx context.Context, apiKey string) (*TokenInfo, error) {
	return doRequest[TokenInfo](ctx, c, c.baseURL+"/tokeninfo?access_token="+url.QueryEscape(apiKey))
}

// doRequest issues a GET and decodes a 200 body into T. Non-200 responses
// come back as *domain.FetchError so callers can branch on the status.
func doRequest[T any](ctx context.Context, client *GW2Client, uri string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Schema-Version", "2019-05-16T00:00:00.000Z")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	client.updateRateLimit(resp)

	if status := resp.StatusCode(); status < 200 || status > 299 {
		return nil, &domain.FetchError{
			Status:     status,
			StatusText: fasthttp.StatusMessage(status),
			URL:        redactToken(uri),
		}
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func redactToken(uri string) string {
	if i := strings.Index(uri, "access_token="); i >= 0 {
		return uri[:i] + "access_token=REDACTED"
	}
	return uri
}
