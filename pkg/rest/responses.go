package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apierr "github.com/amrdata/amrportal/pkg/api/types/errors"
)

type MessageFor map[StatusCodeRange]string

// default messages for each endpoint which does not say more.
var defaultMessages = MessageFor{
	Status4xx: "request is rejected by the data service",
	Status5xx: "the data service has trouble",
}

// unmarshal http response which has json content.
//
// args:
//   - resp: http response to be processed.
//   - v: value which response should be. When v is nil, the body is discarded.
//   - messageFor: title of error message for HTTP status code range.
//
// return:
//
//	error if...
//	- can not read response body
//	- response body is not shaped of v
//	- status code is in 4xx or 5xx (*APIError)
func unmarshalJsonResponse[T any](resp *http.Response, v *T, messageFor MessageFor) error {
	scr := StatusCodeRangeOf(resp)
	if scr == Status2xx {
		if v == nil || resp.StatusCode == http.StatusNoContent {
			_, err := io.Copy(io.Discard, resp.Body)
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("unexpected response: %w (status code = %d)", err, resp.StatusCode)
		}
		return nil
	}

	return errorFromResponse(resp, messageFor)
}

func decodeJson[T any](body []byte, v *T) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}
	return nil
}

func errorFromResponse(resp *http.Response, messageFor MessageFor) error {
	scr := StatusCodeRangeOf(resp)
	message, ok := messageFor[scr]
	if !ok {
		if message, ok = defaultMessages[scr]; !ok {
			message = scr.String()
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewAPIError(
			resp.StatusCode, message,
			fmt.Sprintf("cannot read server message: %s", err.Error()), nil,
		)
	}

	detail, fields := parseErrorMessage(body)
	return NewAPIError(resp.StatusCode, message, detail, fields)
}

// parseErrorMessage finds a human readable message in an error response body.
//
// It understands, in order:
//
//   - {"detail": "..."}
//   - {"message": "..."}
//   - {"reason": "...", "advice": "..."} (the portal's own error shape)
//   - {"field": ["message", ...], ...} (per-field validation errors)
//
// and falls back to the raw body.
func parseErrorMessage(body []byte) (string, map[string][]string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", nil
	}

	if d, err := jsonUnmarshal[struct {
		Detail *string `json:"detail"`
	}](body); err == nil && d.Detail != nil {
		return *d.Detail, nil
	}

	if msg, err := jsonUnmarshal[struct {
		Message *string `json:"message"`
	}](body); err == nil && msg.Message != nil {
		return *msg.Message, nil
	}

	if em, err := jsonUnmarshal[apierr.ErrorMessage](body); err == nil {
		return em.String(), nil
	}

	if fields, err := jsonUnmarshal[map[string][]string](body); err == nil && len(*fields) > 0 {
		f := *fields
		nonField := strings.Join(f["non_field_errors"], " ")
		delete(f, "non_field_errors")
		if len(f) == 0 {
			f = nil
		}
		return nonField, f
	}

	return trimmed, nil
}

func jsonUnmarshal[T any](buf []byte) (*T, error) {
	ret := new(T)
	if err := json.Unmarshal(buf, ret); err != nil {
		return nil, err
	}
	return ret, nil
}
