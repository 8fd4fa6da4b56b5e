package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/report"
	"attendance_tracker_bot/internal/infra/export"

	"github.com/labstack/echo/v4"
)

type sessionAPI struct {
	sessions Sessions
}

func registerSessionAPI(g *echo.Group, sessions Sessions) {
	api := sessionAPI{sessions: sessions}
	g.POST("", api.start)
	g.GET("", api.presence)
	g.DELETE("", api.logout)
}

func (api *sessionAPI) start(c echo.Context) error {
	id := c.Param("coordinatorID")
	state, err := api.sessions.Start(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, echo.Map{"coordinatorId": id, "state": state.String()})
}

func (api *sessionAPI) presence(c echo.Context) error {
	id := c.Param("coordinatorID")
	return c.JSON(http.StatusOK, echo.Map{"coordinatorId": id, "connected": api.sessions.IsConnected(id)})
}

func (api *sessionAPI) logout(c echo.Context) error {
	if err := api.sessions.Logout(c.Request().Context(), c.Param("coordinatorID")); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

type batchAPI struct {
	sessions Sessions
	reports  report.Repository
}

func registerBatchAPI(g *echo.Group, opts *Options) {
	api := batchAPI{sessions: opts.Sessions, reports: opts.Reports}
	g.PUT("/group", api.selectGroup)
	g.PATCH("/settings", api.updateSettings)
	g.PUT("/participants/:participantID/role", api.setRole)
	g.POST("/digest", api.sendDigest)
	g.GET("/reports/:date/export", api.exportReport)
}

func bindValid(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

func (api *batchAPI) selectGroup(c echo.Context) error {
	var req groupRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	b, err := api.sessions.SelectGroup(c.Request().Context(), c.Param("coordinatorID"), req.GroupID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (api *batchAPI) updateSettings(c echo.Context) error {
	var req settingsRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	b, err := api.sessions.UpdateSettings(c.Request().Context(), c.Param("coordinatorID"), *req.IsTrackingEnabled, *req.IsSharingEnabled)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (api *batchAPI) setRole(c echo.Context) error {
	var req roleRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	role, _ := batch.ParseRole(req.Role)
	b, err := api.sessions.SetParticipantRole(c.Request().Context(), c.Param("coordinatorID"), c.Param("participantID"), role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (api *batchAPI) sendDigest(c echo.Context) error {
	if err := api.sessions.SendDigest(c.Request().Context(), c.Param("coordinatorID")); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (api *batchAPI) exportReport(c echo.Context) error {
	ctx := c.Request().Context()
	date := c.Param("date")
	if _, err := report.ParseCivilDate(date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	b, err := api.sessions.Batch(ctx, c.Param("coordinatorID"))
	if err != nil {
		return err
	}
	r, err := api.reports.Get(ctx, b.ID, date)
	if err != nil && !errors.Is(err, report.ErrNotFound) {
		return err
	}
	data, err := export.DailyReportWorkbook(b, r, date)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="attendance_%s.xlsx"`, date))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
