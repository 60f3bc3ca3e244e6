package service

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/plan"
	"github.com/vaultloop/dca-engine/internal/types"
)

type CreatePlanRequest struct {
	SourceAsset        string    `json:"source_asset" validate:"required"`
	TargetAsset        string    `json:"target_asset" validate:"required,nefield=SourceAsset"`
	AmountPerInterval  uint64    `json:"amount_per_interval" validate:"required,gt=0"`
	IntervalSeconds    uint64    `json:"interval_seconds" validate:"required,gt=0"`
	MaxSlippageBps     uint16    `json:"max_slippage_bps" validate:"lte=10000"`
	MaxExecutions      *uint64   `json:"max_executions,omitempty"`
	FirstExecutionTime time.Time `json:"first_execution_time" validate:"required"`
	Priority           string    `json:"priority" validate:"omitempty,oneof=high medium low"`
	Budget             uint64    `json:"budget"`
}

type ResumePlanRequest struct {
	NextExecutionTime *time.Time `json:"next_execution_time,omitempty"`
	Priority          string     `json:"priority" validate:"omitempty,oneof=high medium low"`
	Budget            uint64     `json:"budget"`
}

// APIServer exposes the plan management surface over HTTP.
type APIServer struct {
	plans    *PlanService
	echo     *echo.Echo
	validate *validator.Validate
	logger   *logrus.Logger
	port     int64
}

func NewAPIServer(plans *PlanService, port int64, logger *logrus.Logger) *APIServer {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &APIServer{
		plans:    plans,
		echo:     e,
		validate: validator.New(),
		logger:   logger,
		port:     port,
	}

	e.POST("/plans", s.CreatePlan)
	e.GET("/plans", s.ListPlans)
	e.GET("/plans/:id", s.GetPlan)
	e.POST("/plans/:id/pause", s.PausePlan)
	e.POST("/plans/:id/resume", s.ResumePlan)
	e.DELETE("/plans/:id", s.CancelPlan)
	e.GET("/plans/:id/executions", s.GetExecutionHistory)
	e.GET("/quote", s.PreviewQuote)

	return s
}

func (s *APIServer) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.port))
}

func (s *APIServer) CreatePlan(c echo.Context) error {
	var req CreatePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fail to parse request")
	}
	if err := s.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}

	snapshot, err := s.plans.CreatePlan(c.Request().Context(), plan.CreateParams{
		SourceAsset:        types.AssetID(req.SourceAsset),
		TargetAsset:        types.AssetID(req.TargetAsset),
		AmountPerInterval:  fixedpoint.Amount(req.AmountPerInterval),
		IntervalSeconds:    req.IntervalSeconds,
		MaxSlippageBps:     req.MaxSlippageBps,
		MaxExecutions:      req.MaxExecutions,
		FirstExecutionTime: req.FirstExecutionTime,
	}, req.Priority, req.Budget)
	if err != nil {
		return planError(err)
	}
	return c.JSON(http.StatusCreated, snapshot)
}

func (s *APIServer) ListPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, s.plans.ListPlans())
}

func (s *APIServer) GetPlan(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	snapshot, err := s.plans.GetPlan(id)
	if err != nil {
		return planError(err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *APIServer) PausePlan(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	snapshot, err := s.plans.PausePlan(c.Request().Context(), id)
	if err != nil {
		return planError(err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *APIServer) ResumePlan(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	var req ResumePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fail to parse request")
	}
	if err := s.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}
	snapshot, err := s.plans.ResumePlan(c.Request().Context(), id, req.NextExecutionTime, req.Priority, req.Budget)
	if err != nil {
		return planError(err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *APIServer) CancelPlan(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	if err := s.plans.CancelPlan(c.Request().Context(), id); err != nil {
		return planError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIServer) GetExecutionHistory(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	take, _ := strconv.Atoi(c.QueryParam("take"))
	skip, _ := strconv.Atoi(c.QueryParam("skip"))

	records, err := s.plans.GetExecutionHistory(c.Request().Context(), id, take, skip)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fail to load execution history")
	}
	return c.JSON(http.StatusOK, records)
}

func (s *APIServer) PreviewQuote(c echo.Context) error {
	source := c.QueryParam("source")
	target := c.QueryParam("target")
	if source == "" || target == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source and target are required")
	}
	amount, err := strconv.ParseUint(c.QueryParam("amount"), 10, 64)
	if err != nil || amount == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be a positive integer")
	}
	slippage, err := strconv.ParseUint(c.QueryParam("slippage_bps"), 10, 16)
	if err != nil {
		slippage = 100
	}

	q, err := s.plans.PreviewQuote(c.Request().Context(),
		types.AssetID(source), types.AssetID(target),
		fixedpoint.Amount(amount), uint16(slippage))
	if err != nil {
		return planError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func planID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}
	return id, nil
}

// planError maps the domain error taxonomy onto HTTP status codes.
func planError(err error) error {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrPrecision), errors.Is(err, types.ErrRouting):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrCapability):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, types.ErrInsufficientFunds):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
