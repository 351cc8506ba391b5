package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/CavellTopDev/pitchey-app-sub015/engine"
)

func (a *API) signatureWebhook(c echo.Context) error {
	var hook engine.SignatureWebhook
	if err := c.Bind(&hook); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	evt, err := a.eng.HandleSignatureWebhook(c.Request().Context(), hook)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, evt)
}

func (a *API) paymentWebhook(c echo.Context) error {
	var hook engine.PaymentWebhook
	if err := c.Bind(&hook); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	evt, err := a.eng.HandlePaymentWebhook(c.Request().Context(), hook)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, evt)
}
