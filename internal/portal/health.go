package portal

import (
	"context"
	"net/http"
	"time"

	apierr "github.com/amrdata/amrportal/pkg/api/types/errors"
	"github.com/labstack/echo/v4"
)

const readyTimeout = 5 * time.Second

type Health struct {
	Status string `json:"status"`
}

func (p *Portal) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, Health{Status: "ok"})
}

// readyz reports whether the data API answers.
func (p *Portal) readyz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(requestContext(c), readyTimeout)
	defer cancel()
	if err := p.client.Ping(ctx); err != nil {
		return apierr.ServiceUnavailable("the data API does not answer.", err)
	}
	return c.JSON(http.StatusOK, Health{Status: "ready"})
}
