package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/CavellTopDev/pitchey-app-sub015/cron"
)

func (a *API) listCrons(c echo.Context) error {
	return c.JSON(http.StatusOK, a.eng.Scheduler().Entries())
}

func (a *API) runCron(c echo.Context) error {
	name := c.Param("name")
	if err := a.eng.Scheduler().RunNow(c.Request().Context(), name); err != nil {
		return cronError(err)
	}
	return a.cronEntry(c, name)
}

func (a *API) enableCron(c echo.Context) error  { return a.setCronEnabled(c, true) }
func (a *API) disableCron(c echo.Context) error { return a.setCronEnabled(c, false) }

func (a *API) setCronEnabled(c echo.Context, enabled bool) error {
	name := c.Param("name")
	if err := a.eng.Scheduler().SetEnabled(name, enabled); err != nil {
		return cronError(err)
	}
	return a.cronEntry(c, name)
}

func (a *API) cronEntry(c echo.Context, name string) error {
	for _, e := range a.eng.Scheduler().Entries() {
		if e.Name == name {
			return c.JSON(http.StatusOK, e)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, cron.ErrEntryNotFound.Error())
}

func cronError(err error) error {
	if errors.Is(err, cron.ErrEntryNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}
