package queue

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medikore/medikore/internal/platform/auth"
	"github.com/medikore/medikore/internal/platform/events"
	"github.com/medikore/medikore/internal/platform/middleware"
	"github.com/medikore/medikore/pkg/pagination"
)

type Handler struct {
	svc       *Service
	publisher events.Publisher
	logger    zerolog.Logger
	loc       *time.Location
	now       func() time.Time
	booking   []echo.MiddlewareFunc
}

type HandlerOption func(*Handler)

func WithPublisher(p events.Publisher) HandlerOption {
	return func(h *Handler) { h.publisher = p }
}

func WithHandlerLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l.With().Str("component", "queue.http").Logger() }
}

// WithClinicLocation sets the timezone "today" is computed in.
func WithClinicLocation(loc *time.Location) HandlerOption {
	return func(h *Handler) {
		if loc != nil {
			h.loc = loc
		}
	}
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// WithBookingMiddleware adds middleware to the token issue route only.
func WithBookingMiddleware(mw ...echo.MiddlewareFunc) HandlerOption {
	return func(h *Handler) { h.booking = append(h.booking, mw...) }
}

func NewHandler(svc *Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:       svc,
		publisher: events.Nop{},
		logger:    zerolog.Nop(),
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	own := auth.RequireOwnDoctor("doctorId")

	// Reads open to every signed-in role
	read := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleSecretary, auth.RoleHospitalAdmin))
	read.GET("/doctors/:doctorId/availability/:date", h.GetAvailability)
	read.GET("/doctors/:doctorId/leaves", h.UpcomingLeaves)
	read.GET("/doctors/:doctorId/current", h.CurrentNumber)
	read.GET("/tokens/:id", h.GetToken)

	// Booking: patients book for themselves, the front desk and doctors book
	// walk-ins, doctors into their own queue only
	book := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleSecretary, auth.RoleDoctor), own)
	book.POST("/doctors/:doctorId/tokens", h.IssueToken, h.booking...)

	// Schedule management
	schedule := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSecretary, auth.RoleHospitalAdmin), own)
	schedule.PUT("/doctors/:doctorId/availability/:date", h.UpsertCapacity)
	schedule.PUT("/doctors/:doctorId/availability/:date/pause", h.SetPause)
	schedule.POST("/doctors/:doctorId/leaves", h.MarkLeave)
	schedule.DELETE("/doctors/:doctorId/leaves", h.CancelLeave)

	// Running the queue
	desk := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSecretary))
	desk.POST("/tokens/:id/transition", h.TransitionToken)
	desk.PATCH("/tokens/:id/notes", h.AnnotateToken)

	// Day views
	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSecretary, auth.RoleHospitalAdmin), own)
	staff.GET("/doctors/:doctorId/today", h.DoctorDay)
	staff.GET("/doctors/:doctorId/today/search", h.SearchDay)
	staff.GET("/doctors/:doctorId/tokens", h.ListTokens)

	hospital := api.Group("", auth.RequireRole(auth.RoleHospitalAdmin))
	hospital.GET("/hospitals/:hospitalId/today", h.HospitalDay)
}

// -- request bodies --

type capacityRequest struct {
	TotalTokenCount int  `json:"total_token_count"`
	IsStopped       bool `json:"is_stopped"`
	IsLeave         bool `json:"is_leave"`
}

type pauseRequest struct {
	Paused      bool   `json:"paused"`
	PauseReason string `json:"pause_reason"`
}

type leaveRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type issueRequest struct {
	Date        string     `json:"date"`
	PatientID   *uuid.UUID `json:"patient_id"`
	Name        string     `json:"patient_name"`
	Mobile      string     `json:"patient_mobile"`
	Description string     `json:"description"`
	Source      string     `json:"source"`
}

type transitionRequest struct {
	Status            TokenStatus `json:"status"`
	ConsultationNotes *string     `json:"consultation_notes"`
}

type notesRequest struct {
	ConsultationNotes string `json:"consultation_notes"`
}

type leaveResponse struct {
	DoctorID uuid.UUID    `json:"doctor_id"`
	Dates    []civil.Date `json:"dates"`
}

type currentResponse struct {
	DoctorID                  uuid.UUID  `json:"doctor_id"`
	Date                      civil.Date `json:"date"`
	CurrentConsultationNumber int        `json:"current_consultation_number"`
}

// -- helpers --

func (h *Handler) today() civil.Date {
	return civil.DateOf(h.now().In(h.loc))
}

func badRequest(message string) error {
	return middleware.NewHTTPError(http.StatusBadRequest, "validation_error", message)
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, badRequest("invalid " + name)
	}
	return id, nil
}

func parseDate(field, s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil || !d.IsValid() {
		return civil.Date{}, badRequest(field + " must be a YYYY-MM-DD date")
	}
	return d, nil
}

// dateOrToday parses s, or returns today when s is empty.
func (h *Handler) dateOrToday(field, s string) (civil.Date, error) {
	if s == "" {
		return h.today(), nil
	}
	return parseDate(field, s)
}

func (h *Handler) bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return badRequest("malformed request body")
	}
	return nil
}

// fail turns a service error into an HTTP error.
func (h *Handler) fail(c echo.Context, err error) error {
	var (
		ve *ValidationError
		ce *CapacityError
		te *InvalidTransitionError
		ne *NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		body := middleware.APIError{Code: "validation_error", Message: ve.Error()}
		if ve.Field != "" {
			body.Details = map[string]any{"field": ve.Field}
		}
		return echo.NewHTTPError(http.StatusBadRequest, middleware.ErrorResponse{Error: body})
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, middleware.ErrorResponse{Error: middleware.APIError{
			Code: "slot_unavailable", Message: ce.Error(), Details: map[string]any{"reason": ce.Reason},
		}})
	case errors.As(err, &te):
		return middleware.NewHTTPError(http.StatusUnprocessableEntity, "invalid_transition", te.Error())
	case errors.As(err, &ne):
		return middleware.NewHTTPError(http.StatusNotFound, "not_found", ne.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	}
	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).Str("request_id", rid).Str("route", c.Path()).Msg("queue operation failed")
	return middleware.NewHTTPError(http.StatusInternalServerError, "internal", "internal server error")
}

// publish sends an event after a successful write. Failures are logged and
// never change the response.
func (h *Handler) publish(ctx context.Context, eventType string, doctorID uuid.UUID, date civil.Date, resourceID string, payload any) {
	e, err := events.New(eventType, doctorID, date, resourceID, payload)
	if err == nil {
		err = h.publisher.Publish(context.WithoutCancel(ctx), e)
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("event", eventType).Str("doctor_id", doctorID.String()).Msg("publish event")
	}
}

func (h *Handler) dayParams(c echo.Context) (uuid.UUID, civil.Date, error) {
	doctorID, err := pathUUID(c, "doctorId")
	if err != nil {
		return uuid.Nil, civil.Date{}, err
	}
	date, err := parseDate("date", c.Param("date"))
	if err != nil {
		return uuid.Nil, civil.Date{}, err
	}
	return doctorID, date, nil
}

// -- availability --

func (h *Handler) UpsertCapacity(c echo.Context) error {
	doctorID, date, err := h.dayParams(c)
	if err != nil {
		return err
	}
	var req capacityRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.UpsertCapacity(ctx, doctorID, date, CapacityConfig{
		TotalTokenCount: req.TotalTokenCount,
		IsStopped:       req.IsStopped,
		IsLeave:         req.IsLeave,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.publish(ctx, events.TypeAvailabilityUpdated, doctorID, date, "", a)
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	doctorID, date, err := h.dayParams(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAvailability(c.Request().Context(), doctorID, date)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetPause(c echo.Context) error {
	doctorID, date, err := h.dayParams(c)
	if err != nil {
		return err
	}
	var req pauseRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.SetPause(ctx, doctorID, date, req.Paused, req.PauseReason)
	if err != nil {
		return h.fail(c, err)
	}
	h.publish(ctx, events.TypeAvailabilityUpdated, doctorID, date, "", a)
	return c.JSON(http.StatusOK, a)
}

// -- leave --

func (h *Handler) leaveRange(c echo.Context, req leaveRequest) (uuid.UUID, civil.Date, civil.Date, error) {
	doctorID, err := pathUUID(c, "doctorId")
	if err != nil {
		return uuid.Nil, civil.Date{}, civil.Date{}, err
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return uuid.Nil, civil.Date{}, civil.Date{}, err
	}
	end := start
	if req.EndDate != "" {
		if end, err = parseDate("end_date", req.EndDate); err != nil {
			return uuid.Nil, civil.Date{}, civil.Date{}, err
		}
	}
	return doctorID, start, end, nil
}

func (h *Handler) MarkLeave(c echo.Context) error {
	var req leaveRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	doctorID, start, end, err := h.leaveRange(c, req)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	dates, err := h.svc.MarkLeave(ctx, doctorID, start, end)
	if err != nil {
		return h.fail(c, err)
	}
	h.publishLeave(ctx, doctorID, dates)
	return c.JSON(http.StatusOK, leaveResponse{DoctorID: doctorID, Dates: dates})
}

// CancelLeave takes the range as ?start_date=&end_date=.
func (h *Handler) CancelLeave(c echo.Context) error {
	doctorID, start, end, err := h.leaveRange(c, leaveRequest{
		StartDate: c.QueryParam("start_date"),
		EndDate:   c.QueryParam("end_date"),
	})
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	dates, err := h.svc.CancelLeave(ctx, doctorID, start, end)
	if err != nil {
		return h.fail(c, err)
	}
	h.publishLeave(ctx, doctorID, dates)
	return c.JSON(http.StatusOK, leaveResponse{DoctorID: doctorID, Dates: dates})
}

func (h *Handler) publishLeave(ctx context.Context, doctorID uuid.UUID, dates []civil.Date) {
	for _, d := range dates {
		a, err := h.svc.GetAvailability(ctx, doctorID, d)
		if err != nil {
			h.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("reload availability for event")
			continue
		}
		h.publish(ctx, events.TypeAvailabilityUpdated, doctorID, d, "", a)
	}
}

// UpcomingLeaves defaults to the next 30 days from today.
func (h *Handler) UpcomingLeaves(c echo.Context) error {
	doctorID, err := pathUUID(c, "doctorId")
	if err != nil {
		return err
	}
	from, err := h.dateOrToday("from", c.QueryParam("from"))
	if err != nil {
		return err
	}
	to := from.AddDays(30)
	if s := c.QueryParam("to"); s != "" {
		if to, err = parseDate("to", s); err != nil {
			return err
		}
	}
	summary, err := h.svc.UpcomingLeaves(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// -- tokens --

func (h *Handler) IssueToken(c echo.Context) error {
	doctorID, err := pathUUID(c, "doctorId")
	if err != nil {
		return err
	}
	var req issueRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	today := h.today()
	date := today
	if req.Date != "" {
		if date, err = parseDate("date", req.Date); err != nil {
			return err
		}
	}

	ctx := c.Request().Context()
	t, err := h.svc.IssueToken(ctx, doctorID, date, today, PatientInfo{
		PatientID:   req.PatientID,
		Name:        req.Name,
		Mobile:      req.Mobile,
		Description: req.Description,
		Source:      TokenSource(req.Source),
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.publish(ctx, events.TypeTokenIssued, doctorID, date, t.ID.String(), map[string]any{
		"queue_number": t.QueueNumber,
		"source":       t.Source,
	})
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetToken(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetToken(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) TransitionToken(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	t, err := h.svc.Transition(ctx, id, req.Status, req.ConsultationNotes)
	if err != nil {
		return h.fail(c, err)
	}

	current, err := h.svc.CurrentNumber(ctx, t.DoctorID, t.Date)
	if err != nil {
		h.logger.Warn().Err(err).Str("token_id", id.String()).Msg("current number for event")
	}
	h.publish(ctx, events.TypeTokenTransitioned, t.DoctorID, t.Date, t.ID.String(), map[string]any{
		"queue_number":                t.QueueNumber,
		"status":                      t.Status,
		"current_consultation_number": current,
	})
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) AnnotateToken(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req notesRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	t, err := h.svc.AnnotateToken(c.Request().Context(), id, req.ConsultationNotes)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// -- views --

func (h *Handler) DoctorDay(c echo.Context) error {
	doctorID, err := pathUUID(c, "doctorId")
	if err != nil {
		return err
	}
	date, err := h.dateOrToday("date", c.QueryParam("date"))
	if err != nil {
		return err
	}
	day, err := h.svc.DoctorDay(c.Request().Context(), doctorID, date)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, day)
}

func (h *Handler) CurrentNumber(c echo.Context) error {
	doctorID, err := pathUUID(c, "doctorId")
	if err != nil {
		return err
	}
	date, err := h.dateOrToday("date", c.QueryParam("date"))
	if err != nil {
		return err
	}
	n, err := h.svc.CurrentNumber(c.Request().Context(), doctorID, date)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, currentResponse{DoctorID: doctorID, Date: date, CurrentConsultationNumber: n})
}

func (h *Handler) SearchDay(c echo.Context) error {
	doctorID, err := pathUUID(c, "doctorId")
	if err != nil {
		return err
	}
	date, err := h.dateOrToday("date", c.QueryParam("date"))
	if err != nil {
		return err
	}
	tokens, err := h.svc.SearchDay(c.Request().Context(), doctorID, date, c.QueryParam("q"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pagination.Page(tokens, pagination.FromContext(c)))
}

func (h *Handler) ListTokens(c echo.Context) error {
	doctorID, err := pathUUID(c, "doctorId")
	if err != nil {
		return err
	}
	date, err := h.dateOrToday("date", c.QueryParam("date"))
	if err != nil {
		return err
	}
	tokens, err := h.svc.ListTokens(c.Request().Context(), doctorID, date, TokenStatus(c.QueryParam("status")))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pagination.Page(tokens, pagination.FromContext(c)))
}

func (h *Handler) HospitalDay(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospitalId")
	if err != nil {
		return err
	}
	date, err := h.dateOrToday("date", c.QueryParam("date"))
	if err != nil {
		return err
	}
	view, err := h.svc.HospitalDay(c.Request().Context(), hospitalID, date)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}
