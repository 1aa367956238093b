package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"github.com/nem-pay/conciliare/pkg/logger"
)

const (
	// requestTimeout bounds a single gateway round trip.
	requestTimeout = 10 * time.Second
	// fetchAttempts caps retries per page fetch.
	fetchAttempts = 3
)

// Client reads transaction history from the chain gateway's REST API.
type Client struct {
	logger   *logger.Logger
	baseURL  string
	pageSize int
	client   *http.Client
}

// NewClient creates a new gateway client.
func NewClient(baseURL string, pageSize int, logger *logger.Logger) *Client {
	return &Client{
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type transfersResponse struct {
	Data []TransactionRecord `json:"data"`
}

// IncomingTransactions fetches one page of incoming transactions for an
// account, newest first, strictly older than idCursor (0 = most recent page).
// The gateway fixes the page size; a short page means the feed is exhausted.
func (c *Client) IncomingTransactions(ctx context.Context, address string, idCursor int64) ([]TransactionRecord, error) {
	endpoint := fmt.Sprintf("%s/account/transfers/incoming?address=%s", c.baseURL, url.QueryEscape(address))
	if idCursor > 0 {
		endpoint = fmt.Sprintf("%s&id=%d", endpoint, idCursor)
	}

	var page []TransactionRecord
	err := retry.Do(
		func() error {
			reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned status %d", resp.StatusCode)
			}
			var parsed transfersResponse
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return fmt.Errorf("failed to decode gateway response: %w", err)
			}
			page = parsed.Data
			return nil
		},
		retry.Attempts(fetchAttempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch incoming transactions for %s: %w", address, err)
	}

	// Some gateway implementations hand back more than one page worth.
	if len(page) > c.pageSize {
		page = page[:c.pageSize]
	}
	c.logger.Debug("Fetched transaction page ", "address ", address, " cursor ", idCursor, " records ", len(page))
	return page, nil
}
