package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"millbook/backend/internal/domain"
)

// Client talks to the remote system of record over its JSON API. It
// implements both sync.RemoteClient and sync.Connectivity.
type Client struct {
	baseURL    string
	apiKey     string
	companyID  string
	httpClient *http.Client
}

func NewClient(baseURL string, apiKey string, companyID string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		companyID: companyID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Online probes the remote health endpoint with a short deadline. Any
// response at all counts as reachable.
func (c *Client) Online(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return true
}

type pushResponse struct {
	ID string `json:"id"`
}

func (c *Client) PushCustomer(ctx context.Context, customer domain.Customer) (string, error) {
	return c.push(ctx, "/api/v1/customers", customer.RemoteID, customer)
}

func (c *Client) PushInventoryItem(ctx context.Context, item domain.InventoryItem) (string, error) {
	return c.push(ctx, "/api/v1/inventory", item.RemoteID, item)
}

func (c *Client) PushTransaction(ctx context.Context, tx domain.Transaction) (string, error) {
	return c.push(ctx, "/api/v1/transactions", tx.RemoteID, tx)
}

func (c *Client) PullCustomers(ctx context.Context, since *time.Time) ([]domain.Customer, error) {
	var customers []domain.Customer
	if err := c.pull(ctx, "/api/v1/customers", since, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (c *Client) PullInventoryItems(ctx context.Context, since *time.Time) ([]domain.InventoryItem, error) {
	var items []domain.InventoryItem
	if err := c.pull(ctx, "/api/v1/inventory", since, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) PullTransactions(ctx context.Context, since *time.Time) ([]domain.Transaction, error) {
	var transactions []domain.Transaction
	if err := c.pull(ctx, "/api/v1/transactions", since, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

// push creates a record with POST or, when the record already has a remote
// id, updates it with PUT. Returns the remote id from the response body.
func (c *Client) push(ctx context.Context, path string, remoteID string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	method := http.MethodPost
	endpoint := c.baseURL + path
	if remoteID != "" {
		method = http.MethodPut
		endpoint += "/" + url.PathEscape(remoteID)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("remote returned %d for %s %s: %s", resp.StatusCode, method, path, snippet)
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode push response: %w", err)
	}
	if parsed.ID == "" {
		parsed.ID = remoteID
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("remote returned no id for %s %s", method, path)
	}
	return parsed.ID, nil
}

func (c *Client) pull(ctx context.Context, path string, since *time.Time, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	query := endpoint.Query()
	if since != nil {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	if c.companyID != "" {
		query.Set("company_id", c.companyID)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote returned %d for GET %s: %s", resp.StatusCode, path, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.companyID != "" {
		req.Header.Set("X-Company-ID", c.companyID)
	}
}
