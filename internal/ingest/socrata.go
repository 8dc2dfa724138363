package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SocrataClient pages through Socrata open-data endpoints. Pages are
// fetched sequentially; a transient failure is retried a bounded number of
// times, and a page that still fails aborts the dataset's run.
type SocrataClient struct {
	HTTP     *http.Client
	Token    string
	PageSize int
	Log      *slog.Logger
}

const (
	defaultPageSize = 50000
	fetchRetries    = 4
)

// NewSocrataClient returns a client with a 60s request timeout. token may
// be empty; setting one raises the portal's rate limit.
func NewSocrataClient(token string, log *slog.Logger) *SocrataClient {
	return &SocrataClient{
		HTTP:     &http.Client{Timeout: 60 * time.Second},
		Token:    token,
		PageSize: defaultPageSize,
		Log:      log,
	}
}

func (c *SocrataClient) pageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return defaultPageSize
}

// fetchPage downloads one page body, retrying transient failures with
// exponential backoff. Client errors other than 429 are permanent.
func (c *SocrataClient) fetchPage(ctx context.Context, endpoint string, offset int) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint %s: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("$limit", strconv.Itoa(c.pageSize()))
	q.Set("$offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.Token != "" {
			req.Header.Set("X-App-Token", c.Token)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			err := fmt.Errorf("endpoint returned %s", resp.Status)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("failed to fetch page at offset %d: %w", offset, err)
	}
	return body, nil
}

// FetchCSV pages through a CSV endpoint, invoking fn once per page. Each
// page carries its own header row.
func (c *SocrataClient) FetchCSV(ctx context.Context, endpoint string, fn func(rows []Record) error) error {
	offset := 0
	for {
		body, err := c.fetchPage(ctx, endpoint, offset)
		if err != nil {
			return err
		}

		r := csv.NewReader(strings.NewReader(string(body)))
		r.FieldsPerRecord = -1
		header, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read page header at offset %d: %w", offset, err)
		}
		cols := columnMap(header)

		var rows []Record
		for {
			fields, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read page row at offset %d: %w", offset, err)
			}
			rows = append(rows, Record{fields: fields, cols: cols})
		}

		c.Log.Info("fetched page", "rows", len(rows), "offset", offset)
		if len(rows) > 0 {
			if err := fn(rows); err != nil {
				return err
			}
		}
		if len(rows) < c.pageSize() {
			return nil
		}
		offset += c.pageSize()
	}
}

// FetchJSON pages through a JSON endpoint, invoking fn once per page.
func (c *SocrataClient) FetchJSON(ctx context.Context, endpoint string, fn func(rows []map[string]any) error) error {
	offset := 0
	for {
		body, err := c.fetchPage(ctx, endpoint, offset)
		if err != nil {
			return err
		}

		var rows []map[string]any
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("failed to decode page at offset %d: %w", offset, err)
		}

		c.Log.Info("fetched page", "rows", len(rows), "offset", offset)
		if len(rows) > 0 {
			if err := fn(rows); err != nil {
				return err
			}
		}
		if len(rows) < c.pageSize() {
			return nil
		}
		offset += c.pageSize()
	}
}

// jsonStr reads a string field from a Socrata JSON row; numbers are
// rendered back to text so numeric columns can share the string parsers.
func jsonStr(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
