package handlers

import "github.com/labstack/echo/v4"

// ownerHeader carries the verified principal injected by the upstream
// auth proxy. The service trusts it and performs no credential checks.
const ownerHeader = "X-Owner-ID"

func ownerID(c echo.Context) string {
	return c.Request().Header.Get(ownerHeader)
}
