package echoutil_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httptestutil "github.com/amrdata/amrportal/internal/testutils/http"
	"github.com/amrdata/amrportal/pkg/echoutil"
	"github.com/amrdata/amrportal/pkg/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
)

func TestCopyResponse(t *testing.T) {
	t.Run("when it has lengthed endpoint behind, it streams body and download headers", func(t *testing.T) {
		body := []byte("id,organism\n1,E. coli\n")
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Content-Length", fmt.Sprintf("%d", len(body)))
			w.Header().Add("Content-Type", "text/csv")
			w.Header().Add("Content-Disposition", `attachment; filename="ds-1.csv"`)
			w.Header().Add("Set-Cookie", "upstream=secret")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
		}))
		defer ts.Close()

		resp, err := http.Get(ts.URL)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		e := echo.New()
		ctx, respRec := httptestutil.Get(e, "/datasets/1/download")
		if err := echoutil.CopyResponse(ctx, resp); err != nil {
			t.Fatal(err)
		}

		result := respRec.Result()
		if result.StatusCode != http.StatusOK {
			t.Errorf("status code 200 != %d", result.StatusCode)
		}
		if got := respRec.Body.String(); got != string(body) {
			t.Errorf("unmatch response body:%s expected:%s", got, body)
		}
		if got := result.Header.Get("Content-Disposition"); got != `attachment; filename="ds-1.csv"` {
			t.Errorf("unmatch Content-Disposition: %s", got)
		}
		if got := result.Header.Get("Content-Type"); got != "text/csv" {
			t.Errorf("unmatch Content-Type: %s", got)
		}
		if got := result.Header.Get("Set-Cookie"); got != "" {
			t.Errorf("upstream cookie is leaked: %s", got)
		}
	})

	t.Run("when it has chunked endpoint behind, it streams all chunks", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Content-Type", "text/csv")
			w.WriteHeader(http.StatusOK)
			for i := 0; i < 3; i++ {
				fmt.Fprintf(w, "row %d\n", i)
				w.(http.Flusher).Flush()
			}
		}))
		defer ts.Close()

		resp, err := http.Get(ts.URL)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		e := echo.New()
		ctx, respRec := httptestutil.Get(e, "/")
		if err := echoutil.CopyResponse(ctx, resp); err != nil {
			t.Fatal(err)
		}

		b, err := io.ReadAll(respRec.Body)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != "row 0\nrow 1\nrow 2\n" {
			t.Errorf("unmatch response body: %q", b)
		}
	})

	t.Run("only given headers are copied", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusAccepted,
			Header:     http.Header{"X-Keep": {"1"}, "Content-Type": {"text/plain"}},
			Body:       io.NopCloser(strings.NewReader("ok")),
		}
		e := echo.New()
		ctx, respRec := httptestutil.Get(e, "/")
		if err := echoutil.CopyResponse(ctx, resp, "X-Keep"); err != nil {
			t.Fatal(err)
		}
		if respRec.Code != http.StatusAccepted {
			t.Errorf("status: %d", respRec.Code)
		}
		if respRec.Header().Get("X-Keep") != "1" || respRec.Header().Get("Content-Type") != "" {
			t.Errorf("unexpected headers: %v", respRec.Header())
		}
	})
}

func TestCopyHeader(t *testing.T) {
	src := http.Header{}
	src.Add("Content-Type", "text/plain")
	src.Add("Accept-Encoding", "gzip")
	src.Add("Accept-Encoding", "compress")

	t.Run("the header should be copied correctly", func(t *testing.T) {
		dest := http.Header{}
		echoutil.CopyHeader(&dest, &src)
		if dest.Get("Content-Type") != "text/plain" {
			t.Error("copy header failed. unmatch header.")
		}
		if got := dest.Values("Accept-Encoding"); len(got) != 2 || got[0] != "gzip" || got[1] != "compress" {
			t.Errorf("unmatch the value of Accept-Encoding header: %v", got)
		}
	})

	t.Run("marked headers are not copied", func(t *testing.T) {
		dest := http.Header{}
		echoutil.CopyHeader(&dest, &src, "accept-encoding")
		if dest.Get("Content-Type") != "text/plain" {
			t.Error("copy header failed. unmatch header.")
		}
		if dest.Get("Accept-Encoding") != "" {
			t.Error("copy header failed. marked headers are copied.")
		}
	})
}

func TestLogHandler(t *testing.T) {
	t.Run("it logs begin and end of a request, and shares the logger by context", func(t *testing.T) {
		buf := new(bytes.Buffer)
		logger := logging.New(buf, "debug")

		e := echo.New()
		e.Use(echoutil.LogHandler(logger))
		e.GET("/datasets/:id", func(c echo.Context) error {
			logging.FromContext(c.Request().Context()).Info("in handler", zap.String("id", c.Param("id")))
			return echo.NewHTTPError(http.StatusNotFound, "no such dataset")
		})

		req := httptestutil.NewRequest("/datasets/42", httptestutil.WithHeader(echo.HeaderXRequestID, "req-1"))
		resp := httptestutil.Serve(e, req)
		if resp.Code != http.StatusNotFound {
			t.Errorf("status: %d", resp.Code)
		}

		out := buf.String()
		for _, want := range []string{"< request", "in handler", "> response", `"status": 404`, `"request_id": "req-1"`, `"path": "/datasets/42"`} {
			if !strings.Contains(out, want) {
				t.Errorf("log does not contain %q:\n%s", want, out)
			}
		}
	})
}

func TestLogHandler_ErrorHandler(t *testing.T) {
	errMissing := errors.New("missing")

	buf := new(bytes.Buffer)
	logger := logging.New(buf, "info")

	handled := 0
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handled += 1
		if errors.Is(err, errMissing) {
			c.String(http.StatusNotFound, "not found")
			return
		}
		c.String(http.StatusInternalServerError, "oops")
	}
	e.Use(echoutil.LogHandler(logger))
	e.GET("/datasets/:id", func(c echo.Context) error {
		return fmt.Errorf("dataset %s: %w", c.Param("id"), errMissing)
	})

	resp := httptestutil.Serve(e, httptestutil.NewRequest("/datasets/nope"))
	if resp.Code != http.StatusNotFound {
		t.Errorf("status: %d", resp.Code)
	}
	if handled != 1 {
		t.Errorf("error handler is called %d times", handled)
	}

	out := buf.String()
	for _, want := range []string{`"status": 404`, "dataset nope: missing"} {
		if !strings.Contains(out, want) {
			t.Errorf("log does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, `"status": 200`) {
		t.Errorf("log reports status before the error handler:\n%s", out)
	}
}

func TestSetLevel(t *testing.T) {
	theory := func(when string, then log.Lvl) func(*testing.T) {
		return func(t *testing.T) {
			e := echo.New()
			e.Logger.SetOutput(io.Discard)
			echoutil.SetLevel(e, when)
			if got := e.Logger.Level(); got != then {
				t.Errorf("level: got %v, want %v", got, then)
			}
		}
	}

	t.Run("debug", theory("debug", log.DEBUG))
	t.Run("info", theory("info", log.INFO))
	t.Run("warn", theory("warn", log.WARN))
	t.Run("empty is warn", theory("", log.WARN))
	t.Run("error", theory("error", log.ERROR))
	t.Run("off", theory("off", log.OFF))
	t.Run("unknown is warn", theory("chatty", log.WARN))
}
