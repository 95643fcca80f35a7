package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to an upstream VOL ledger node over HTTP. All responses are
// trusted; the service does no cryptographic verification of its own.

var (
	ErrNotFound   = errors.New("not found on ledger")
	ErrBadRequest = errors.New("ledger request failed")
)

const requestTimeoutDefault = 5 * time.Second

type Client struct {
	client  http.Client
	baseURL string
	logger  *slog.Logger
}

func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithRequestTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

func New(baseURL string, opts ...func(client *Client)) *Client {
	c := &Client{
		client:  http.Client{Timeout: requestTimeoutDefault},
		baseURL: baseURL,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type Consensus struct {
	Height uint64 `json:"height"`
	Digest string `json:"digest"`
}

type Block struct {
	Height uint64 `json:"height"`
	Body   string `json:"body"`
}

type OfferAsset struct {
	AssetID string `json:"assetID"`
	Type    string `json:"type"`
}

type Offer struct {
	OfferID      string       `json:"offerID"`
	Seller       string       `json:"seller"`
	Assets       []OfferAsset `json:"assets"`
	MinimumPrice uint64       `json:"minimumPrice"`
	Expiration   string       `json:"expiration"`
}

type Account struct {
	Name  string `json:"name"`
	Index int64  `json:"index"`
}

// AssetInfo bundles the asset record with its current owner (account index)
// and the stamp payload, if any. Owner is nil for unowned assets.
type AssetInfo struct {
	AssetID string          `json:"assetID"`
	Owner   *int64          `json:"owner"`
	Asset   json.RawMessage `json:"asset"`
	Stamp   json.RawMessage `json:"stamp"`
}

// GetConsensus returns the ledger's current height and digest.
func (c *Client) GetConsensus(ctx context.Context) (*Consensus, error) {
	var consensus Consensus
	err := c.getJSON(ctx, "consensus", 0, &consensus)
	if err != nil {
		return nil, err
	}

	return &consensus, nil
}

func (c *Client) GetBlock(ctx context.Context, height uint64) (*Block, error) {
	var resp struct {
		Block *Block `json:"block"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("blocks/%d", height), 0, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Block == nil {
		return nil, ErrNotFound
	}

	return resp.Block, nil
}

// GetOffer resolves an offer by offer ID or by any of its asset IDs, as of
// the given height (0 means latest).
func (c *Client) GetOffer(ctx context.Context, identifier string, atHeight uint64) (*Offer, error) {
	var offer Offer
	err := c.getJSON(ctx, "offers/"+url.PathEscape(identifier), atHeight, &offer)
	if err != nil {
		return nil, err
	}

	return &offer, nil
}

func (c *Client) GetAccount(ctx context.Context, accountID string, atHeight uint64) (*Account, error) {
	var resp struct {
		Account *Account `json:"account"`
	}
	err := c.getJSON(ctx, "accounts/"+url.PathEscape(accountID), atHeight, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Account == nil {
		return nil, ErrNotFound
	}

	return resp.Account, nil
}

func (c *Client) GetAsset(ctx context.Context, assetID string, atHeight uint64) (*AssetInfo, error) {
	var info AssetInfo
	err := c.getJSON(ctx, "assets/"+url.PathEscape(assetID), atHeight, &info)
	if err != nil {
		return nil, err
	}

	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, atHeight uint64, target any) error {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, path)
	if atHeight > 0 {
		endpoint += "?at=" + strconv.FormatUint(atHeight, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to ledger failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Join(ErrBadRequest, fmt.Errorf("response status not OK: %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
