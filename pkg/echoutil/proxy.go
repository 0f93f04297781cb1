package echoutil

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// DownloadHeaders are response headers passed to the browser by CopyResponse by default.
var DownloadHeaders = []string{
	echo.HeaderContentType,
	echo.HeaderContentLength,
	echo.HeaderContentDisposition,
	echo.HeaderLastModified,
	"ETag",
}

// CopyHeader adds headers of src to dest, except ones named in except (case insensitive).
func CopyHeader(dest *http.Header, src *http.Header, except ...string) {
	exc := map[string]struct{}{}
	for _, x := range except {
		exc[strings.ToLower(x)] = struct{}{}
	}

	for k, vs := range *src {
		if _, ok := exc[strings.ToLower(k)]; ok {
			continue
		}
		for _, v := range vs {
			dest.Add(k, v)
		}
	}
}

// CopyResponse streams resp to the client of c.
//
// Only headers named in only are copied; when only is empty, DownloadHeaders are.
// Chunked responses are flushed as they arrive. It does not close resp.Body.
func CopyResponse(c echo.Context, resp *http.Response, only ...string) error {
	if len(only) == 0 {
		only = DownloadHeaders
	}
	ctx := c.Request().Context()

	dstResp := c.Response()
	dstHeader := dstResp.Header()
	for _, h := range only {
		for _, v := range resp.Header.Values(h) {
			dstHeader.Add(h, v)
		}
	}

	chunked := false
	for _, te := range resp.TransferEncoding {
		if strings.EqualFold(te, "chunked") {
			chunked = true
		}
	}
	if chunked {
		dstHeader.Del(echo.HeaderContentLength)
	}

	dstResp.WriteHeader(resp.StatusCode)

	if !chunked {
		_, err := io.Copy(dstResp.Writer, resp.Body)
		return err
	}

	buf := make([]byte, 256*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buf)
		if 0 < n {
			if _, werr := dstResp.Write(buf[:n]); werr != nil {
				return werr
			}
			dstResp.Flush()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
