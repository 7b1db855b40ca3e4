package httpsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/reconcile"
)

// DefaultTimeout is the request timeout of a Client built without an
// http.Client.
const DefaultTimeout = 30 * time.Second

// Client is a reconcile.Peer backed by a remote Server.
type Client struct {
	base string
	http *http.Client
}

var _ reconcile.Peer = (*Client)(nil)

// NewClient talks to the server at baseURL. A nil httpClient uses one with
// DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("new client: unsupported scheme %q", u.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}, nil
}

// StatusError is a non-2xx answer other than a decode failure.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
}

// Streams implements reconcile.Peer.
func (c *Client) Streams(ctx context.Context) ([]eventlog.StreamID, error) {
	var resp streamsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/streams", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Streams, nil
}

// Counts implements reconcile.Peer.
func (c *Client) Counts(ctx context.Context, stream eventlog.StreamID) (eventlog.Counts, error) {
	q := url.Values{"stream": {string(stream)}}
	var resp countsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/counts", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Counts == nil {
		resp.Counts = eventlog.Counts{}
	}
	return resp.Counts, nil
}

// Events implements reconcile.Peer. Records whose payload is not a valid
// generic value come back as *eventlog.DecodeError.
func (c *Client) Events(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID, skip int) ([]eventlog.WireEvent, error) {
	q := url.Values{
		"stream": {string(stream)},
		"device": {string(device)},
		"skip":   {strconv.Itoa(max(skip, 0))},
	}
	var resp eventsBody
	if err := c.do(ctx, http.MethodGet, "/v1/events", q, nil, &resp); err != nil {
		var de *eventlog.DecodeError
		if errors.As(err, &de) && de.Stream == "" {
			de.Stream, de.Device = stream, device
			return nil, de
		}
		return nil, err
	}
	return resp.Events, nil
}

// Push implements reconcile.Peer.
func (c *Client) Push(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID, events []eventlog.WireEvent) (int, error) {
	q := url.Values{
		"stream": {string(stream)},
		"device": {string(device)},
	}
	var resp pushResponse
	if err := c.do(ctx, http.MethodPost, "/v1/events", q, eventsBody{Events: events}, &resp); err != nil {
		return 0, err
	}
	return resp.Accepted, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	target := c.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeFailure(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// decodeFailure turns an error answer back into a Go error. A 422 becomes
// *eventlog.DecodeError so the reconciler can tell it from a transport
// failure.
func decodeFailure(resp *http.Response) error {
	var body errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		de := &eventlog.DecodeError{
			Stream: body.Stream,
			Device: body.Device,
			Err:    errors.New(body.Error),
		}
		if body.Index != nil {
			de.Index = *body.Index
		}
		return de
	}
	return &StatusError{Status: resp.StatusCode, Message: body.Error}
}
