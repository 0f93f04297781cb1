package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// getJson GETs u and decodes the body into T, through the query cache if there is one.
func getJson[T any](ctx context.Context, c *client, u string, groups []string, messageFor MessageFor) (T, error) {
	var ret T
	if c.cache == nil {
		req, err := c.newRequest(ctx, http.MethodGet, u, nil)
		if err != nil {
			return ret, err
		}
		resp, err := c.httpclient.Do(req)
		if err != nil {
			return ret, err
		}
		defer resp.Body.Close()
		if err := unmarshalJsonResponse(resp, &ret, messageFor); err != nil {
			return ret, err
		}
		return ret, nil
	}

	body, err := c.cache.Fetch(ctx, c.token, u, groups, func(ctx context.Context) ([]byte, error) {
		return c.fetchBody(ctx, u, messageFor)
	})
	if err != nil {
		return ret, err
	}
	if err := decodeJson(body, &ret); err != nil {
		return ret, err
	}
	return ret, nil
}

func (c *client) fetchBody(ctx context.Context, u string, messageFor MessageFor) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if StatusCodeRangeOf(resp) != Status2xx {
		return nil, errorFromResponse(resp, messageFor)
	}
	return io.ReadAll(resp.Body)
}

// sendJson sends payload as json with method, and decodes the response into T.
//
// When payload is nil, the request has no body.
// On success, groups are invalidated in the query cache.
func sendJson[T any](
	ctx context.Context, c *client, method string, u string, payload any,
	messageFor MessageFor, invalidates ...string,
) (T, error) {
	var ret T

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return ret, err
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, u, body)
	if err != nil {
		return ret, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return ret, err
	}
	defer resp.Body.Close()

	if err := unmarshalJsonResponse(resp, &ret, messageFor); err != nil {
		return ret, err
	}
	if c.cache != nil {
		c.cache.Invalidate(invalidates...)
	}
	return ret, nil
}
