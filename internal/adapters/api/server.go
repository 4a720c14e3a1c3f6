package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alejandrodnm/polypilot/internal/application/engine"
	"github.com/alejandrodnm/polypilot/internal/domain"
	"github.com/alejandrodnm/polypilot/internal/ports"
)

// Server exposes the operational HTTP API: wallet status, settings
// management, and the trade-log feed. All trading decisions live in the
// engine; this layer only reads state and writes settings.
type Server struct {
	router   *gin.Engine
	settings ports.SettingsStore
	ledger   ports.RiskLedger
	status   *engine.Status
	breakers *engine.BreakerBoard
}

// NewServer wires the routes.
func NewServer(settings ports.SettingsStore, ledger ports.RiskLedger, status *engine.Status, breakers *engine.BreakerBoard) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		router:   r,
		settings: settings,
		ledger:   ledger,
		status:   status,
		breakers: breakers,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.health)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/wallets", s.listWallets)
		api.GET("/wallets/:id/settings", s.getSettings)
		api.PUT("/wallets/:id/settings", s.putSettings)
		api.POST("/wallets/:id/enable", s.enableWallet)
		api.POST("/wallets/:id/disable", s.disableWallet)
		api.POST("/wallets/:id/resume", s.resumeWallet)
		api.GET("/wallets/:id/positions", s.getPositions)
		api.GET("/wallets/:id/activity", s.getActivity)
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	wallets, err := s.status.Wallets(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

func (s *Server) listWallets(c *gin.Context) {
	all, err := s.settings.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]walletSettingsDTO, 0, len(all))
	for _, ws := range all {
		out = append(out, toDTO(ws))
	}
	c.JSON(http.StatusOK, gin.H{"wallets": out})
}

func (s *Server) getSettings(c *gin.Context) {
	ws, err := s.settings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, toDTO(ws))
}

func (s *Server) putSettings(c *gin.Context) {
	var dto walletSettingsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	ws := dto.toDomain(c.Param("id"))
	if err := ws.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.settings.Set(c.Request.Context(), ws); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, toDTO(ws))
}

func (s *Server) enableWallet(c *gin.Context) {
	s.setEnabled(c, true)
}

func (s *Server) disableWallet(c *gin.Context) {
	s.setEnabled(c, false)
}

func (s *Server) setEnabled(c *gin.Context, enabled bool) {
	if err := s.settings.SetEnabled(c.Request.Context(), c.Param("id"), enabled); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet_id": c.Param("id"), "enabled": enabled})
}

// resumeWallet clears a tripped breaker and flips the master switch back on.
// Deliberately a separate action from enable so an operator cannot un-trip a
// breaker by accident.
func (s *Server) resumeWallet(c *gin.Context) {
	id := c.Param("id")
	s.breakers.Reset(c.Request.Context(), id)
	if err := s.settings.SetEnabled(c.Request.Context(), id, true); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet_id": id, "enabled": true, "breaker_tripped": false})
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.ledger.OpenPositions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) getActivity(c *gin.Context) {
	var q struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}

	entries, err := s.ledger.RecentLog(c.Request.Context(), c.Param("id"), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// walletSettingsDTO is the wire shape for wallet settings.
type walletSettingsDTO struct {
	WalletID string `json:"wallet_id"`
	Enabled  bool   `json:"enabled"`

	AutoBuyEnabled   bool     `json:"auto_buy_enabled"`
	MaxPositionSize  float64  `json:"max_position_size"`
	MaxTotalExposure float64  `json:"max_total_exposure"`
	MinEdge          float64  `json:"min_edge"`
	Strategies       []string `json:"strategies"`

	TakeProfitEnabled   bool    `json:"take_profit_enabled"`
	TakeProfitPct       float64 `json:"take_profit_pct"`
	StopLossEnabled     bool    `json:"stop_loss_enabled"`
	StopLossPct         float64 `json:"stop_loss_pct"`
	TrailingStopEnabled bool    `json:"trailing_stop_enabled"`
	TrailingStopPct     float64 `json:"trailing_stop_pct"`
	TimeExitEnabled     bool    `json:"time_exit_enabled"`
	TimeExitHours       float64 `json:"time_exit_hours"`

	MaxPositions    int     `json:"max_positions"`
	CooldownMinutes int     `json:"cooldown_minutes"`
	MaxDailyLoss    float64 `json:"max_daily_loss"`

	UpdatedAt time.Time `json:"updated_at"`
}

func toDTO(ws domain.WalletSettings) walletSettingsDTO {
	strategies := make([]string, 0, len(ws.Strategies))
	for _, t := range ws.Strategies {
		strategies = append(strategies, string(t))
	}
	return walletSettingsDTO{
		WalletID:            ws.WalletID,
		Enabled:             ws.Enabled,
		AutoBuyEnabled:      ws.AutoBuyEnabled,
		MaxPositionSize:     ws.MaxPositionSize,
		MaxTotalExposure:    ws.MaxTotalExposure,
		MinEdge:             ws.MinEdge,
		Strategies:          strategies,
		TakeProfitEnabled:   ws.TakeProfitEnabled,
		TakeProfitPct:       ws.TakeProfitPct,
		StopLossEnabled:     ws.StopLossEnabled,
		StopLossPct:         ws.StopLossPct,
		TrailingStopEnabled: ws.TrailingStopEnabled,
		TrailingStopPct:     ws.TrailingStopPct,
		TimeExitEnabled:     ws.TimeExitEnabled,
		TimeExitHours:       ws.TimeExitHours,
		MaxPositions:        ws.MaxPositions,
		CooldownMinutes:     ws.CooldownMinutes,
		MaxDailyLoss:        ws.MaxDailyLoss,
		UpdatedAt:           ws.UpdatedAt,
	}
}

func (d walletSettingsDTO) toDomain(walletID string) domain.WalletSettings {
	strategies := make([]domain.StrategyTag, 0, len(d.Strategies))
	for _, s := range d.Strategies {
		strategies = append(strategies, domain.ParseStrategyTag(s))
	}
	return domain.WalletSettings{
		WalletID:            walletID,
		Enabled:             d.Enabled,
		AutoBuyEnabled:      d.AutoBuyEnabled,
		MaxPositionSize:     d.MaxPositionSize,
		MaxTotalExposure:    d.MaxTotalExposure,
		MinEdge:             d.MinEdge,
		Strategies:          strategies,
		TakeProfitEnabled:   d.TakeProfitEnabled,
		TakeProfitPct:       d.TakeProfitPct,
		StopLossEnabled:     d.StopLossEnabled,
		StopLossPct:         d.StopLossPct,
		TrailingStopEnabled: d.TrailingStopEnabled,
		TrailingStopPct:     d.TrailingStopPct,
		TimeExitEnabled:     d.TimeExitEnabled,
		TimeExitHours:       d.TimeExitHours,
		MaxPositions:        d.MaxPositions,
		CooldownMinutes:     d.CooldownMinutes,
		MaxDailyLoss:        d.MaxDailyLoss,
		UpdatedAt:           time.Now().UTC(),
	}
}
