// Package gridhttp implements the grid.Grid interface over a cell REST API.
//
// Expected endpoints:
//
//	GET  {baseURL}/range/{a1Range}  -> {"rows": [["...", ...], ...]}
//	PUT  {baseURL}/cell/{a1Cell}    <- {"value": "..."}
//	GET  {baseURL}/meta             -> {"lastRow": N}
package gridhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cellref"
	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

const (
	retryCount       = 3
	retryWaitTime    = 100 * time.Millisecond
	retryMaxWaitTime = 2 * time.Second
	requestTimeout   = 30 * time.Second
)

type Client struct {
	resty *resty.Client
}

type rangeResponse struct {
	Rows [][]string `json:"rows"`
}

type cellRequest struct {
	Value string `json:"value"`
}

type metaResponse struct {
	LastRow int `json:"lastRow"`
}

func NewClient(baseURL string, token string) *Client {
	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(requestTimeout)
	r.SetRetryCount(retryCount)
	r.SetRetryWaitTime(retryWaitTime)
	r.SetRetryMaxWaitTime(retryMaxWaitTime)
	r.AddRetryCondition(func(response *resty.Response, err error) bool {
		return err != nil || response.StatusCode() >= http.StatusInternalServerError
	})
	if token != "" {
		r.SetAuthToken(token)
	}
	return &Client{resty: r}
}

func (c *Client) ReadRange(ctx context.Context, r cellref.Range) ([][]string, error) {
	result := &rangeResponse{}
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(result).
		Get("/range/" + r.String())
	if err != nil {
		return nil, errors.Wrapf(err, `cannot read range "%s"`, r.String())
	}
	if resp.IsError() {
		return nil, errors.Errorf(`cannot read range "%s": status %d`, r.String(), resp.StatusCode())
	}

	// Normalize shape, the server may omit trailing empty cells.
	height := r.End.Row - r.Start.Row + 1
	width := r.End.Column - r.Start.Column + 1
	out := make([][]string, height)
	for i := range out {
		out[i] = make([]string, width)
		if i < len(result.Rows) {
			copy(out[i], result.Rows[i])
		}
	}
	return out, nil
}

func (c *Client) WriteCell(ctx context.Context, cell cellref.CellRef, value string) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(cellRequest{Value: value}).
		Put("/cell/" + cell.A1())
	if err != nil {
		return errors.Wrapf(err, `cannot write cell "%s"`, cell.A1())
	}
	if resp.IsError() {
		return errors.Errorf(`cannot write cell "%s": status %d`, cell.A1(), resp.StatusCode())
	}
	return nil
}

func (c *Client) LastRow(ctx context.Context) (int, error) {
	result := &metaResponse{}
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(result).
		Get("/meta")
	if err != nil {
		return 0, errors.Wrap(err, "cannot read grid meta")
	}
	if resp.IsError() {
		return 0, errors.Errorf("cannot read grid meta: status %d", resp.StatusCode())
	}
	return result.LastRow, nil
}
