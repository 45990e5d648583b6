package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"labrelay/internal/domain"
	"labrelay/internal/session"
)

// Server routes operator requests to the agent at the caller's own origin
type Server struct {
	sessions *session.Registry
	client   *AgentClient
	events   http.Handler
	log      zerolog.Logger
}

// NewServer wires the relay. events may be nil when no live feed is served.
func NewServer(sessions *session.Registry, client *AgentClient, events http.Handler, log zerolog.Logger) *Server {
	return &Server{sessions: sessions, client: client, events: events, log: log}
}

// ClientInfo describes an operator's session in my-status replies
type ClientInfo struct {
	IP          string               `json:"ip"`
	Status      session.Status       `json:"status"`
	Instruments []domain.DeviceEntry `json:"instruments"`
	LastSeen    time.Time            `json:"last_seen"`
	SessionID   string               `json:"session_id"`
}

// ClientSummary is one row of the admin client listing
type ClientSummary struct {
	IP               string         `json:"ip"`
	SessionID        string         `json:"session_id"`
	Status           session.Status `json:"status"`
	InstrumentsCount int            `json:"instruments_count"`
	LastSeen         time.Time      `json:"last_seen"`
}

type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func newClientInfo(s session.Session) ClientInfo {
	devices := s.Devices
	if devices == nil {
		devices = []domain.DeviceEntry{}
	}
	return ClientInfo{
		IP:          s.Origin,
		Status:      s.Status,
		Instruments: devices,
		LastSeen:    s.LastSeen,
		SessionID:   s.Token,
	}
}

// Echo builds the HTTP surface
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("origin", Origin(c.Request())).
				Msg("request")
			return nil
		},
	}))

	// Routes
	api := e.Group("/api")
	api.GET("/my-status", s.myStatus)
	api.POST("/detect", s.detect)
	api.POST("/control", s.control)
	api.GET("/status", s.instrumentStatus)
	api.GET("/admin/clients", s.adminClients)
	if s.events != nil {
		api.GET("/admin/events", echo.WrapHandler(s.events))
	}

	return e
}

// forwardError maps a failed exchange onto a reply. An unreachable agent
// marks the session disconnected.
func (s *Server) forwardError(c echo.Context, origin string, err error) error {
	var ue *AgentUnreachableError
	if errors.As(err, &ue) {
		s.sessions.SetStatus(origin, session.StatusDisconnected)
		s.log.Warn().Str("origin", origin).Err(ue.Err).Msg("agent unreachable")
		return c.JSON(http.StatusBadGateway, failure{Message: err.Error()})
	}

	s.log.Error().Str("origin", origin).Err(err).Msg("forward failed")
	return c.JSON(http.StatusInternalServerError, failure{Message: err.Error()})
}

// reached records a completed exchange with the origin's agent
func (s *Server) reached(origin string) {
	s.sessions.SetStatus(origin, session.StatusConnected)
	s.sessions.Touch(origin)
}

func (s *Server) myStatus(c echo.Context) error {
	origin := Origin(c.Request())
	s.sessions.Touch(origin)

	status := session.StatusConnected
	if err := s.client.Liveness(c.Request().Context(), origin); err != nil {
		status = session.StatusDisconnected
	}
	sess, _ := s.sessions.SetStatus(origin, status)

	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"client_info": newClientInfo(sess),
	})
}

func (s *Server) detect(c echo.Context) error {
	origin := Origin(c.Request())
	s.sessions.Touch(origin)

	res, err := s.client.Discover(c.Request().Context(), origin)
	if err != nil {
		return s.forwardError(c, origin, err)
	}

	s.sessions.SetDevices(origin, res.Instruments)
	s.reached(origin)
	s.log.Info().Str("origin", origin).Int("count", res.Count).Msg("discover relayed")
	return c.JSON(http.StatusOK, res)
}

func (s *Server) control(c echo.Context) error {
	origin := Origin(c.Request())

	var req domain.CommandRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failure{Message: "invalid request body"})
	}
	if req.Address == "" || req.Action == "" || req.Category == "" {
		return c.JSON(http.StatusBadRequest, failure{Message: "address, action and instrument_type are required"})
	}

	s.sessions.Touch(origin)
	return s.execute(c, origin, req, s.client.Timeouts().Control)
}

func (s *Server) instrumentStatus(c echo.Context) error {
	origin := Origin(c.Request())

	req := domain.CommandRequest{
		Category: c.QueryParam("instrument_type"),
		Address:  c.QueryParam("address"),
		Action:   "status",
	}
	if req.Category == "" || req.Address == "" {
		return c.JSON(http.StatusBadRequest, failure{Message: "instrument_type and address are required"})
	}

	s.sessions.Touch(origin)
	return s.execute(c, origin, req, s.client.Timeouts().Status)
}

func (s *Server) execute(c echo.Context, origin string, req domain.CommandRequest, timeout time.Duration) error {
	res, err := s.client.Execute(c.Request().Context(), origin, req, timeout)
	if err != nil {
		return s.forwardError(c, origin, err)
	}

	s.reached(origin)
	if !res.Success {
		s.log.Info().Str("origin", origin).Str("action", req.Action).Str("message", res.Message).Msg("command failed")
		return c.JSON(http.StatusUnprocessableEntity, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) adminClients(c echo.Context) error {
	sessions := s.sessions.List()
	clients := make([]ClientSummary, 0, len(sessions))
	for _, sess := range sessions {
		clients = append(clients, ClientSummary{
			IP:               sess.Origin,
			SessionID:        sess.Token,
			Status:           sess.Status,
			InstrumentsCount: len(sess.Devices),
			LastSeen:         sess.LastSeen,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total_clients": len(clients),
		"clients":       clients,
	})
}

// Probe adapts the client to the session monitor
func (s *Server) Probe(ctx context.Context, origin string) bool {
	return s.client.Alive(ctx, origin)
}
