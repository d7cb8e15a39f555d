package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/registry"
	"github.com/vitwit/walletlink/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Wallet is the connection state machine driven by the API.
type Wallet interface {
	State() types.ConnectionState
	Connect(ctx context.Context, kind types.ConnectorKind) error
	Disconnect(ctx context.Context) error
	SwitchChain(ctx context.Context, id types.ChainID) error
	Dismiss() error
}

// ConnectorLister reports which connectors the application offers.
type ConnectorLister interface {
	Available() []types.ConnectorDescriptor
}

type Handler struct {
	wallet     Wallet
	connectors ConnectorLister
	registry   *registry.Registry
	logger     logger.Logger
	limiter    *RateLimiter
}

type HandlerOption func(*Handler)

func WithHandlerLogger(l logger.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithRateLimit throttles the mutating endpoints per client IP.
func WithRateLimit(perSecond float64, burst int) HandlerOption {
	return func(h *Handler) {
		h.limiter = NewRateLimiter(perSecond, burst)
	}
}

func NewHandler(wallet Wallet, conns ConnectorLister, reg *registry.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		wallet:     wallet,
		connectors: conns,
		registry:   reg,
		logger:     logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logger.OrNoop(h.logger)
	return h
}

// RegisterRoutes mounts the wallet endpoints under /api/wallet.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/wallet")
	g.GET("/state", h.getState)
	g.GET("/chains", h.listChains)
	g.GET("/chains/:id", h.getChain)
	g.GET("/connectors", h.listConnectors)

	mut := g.Group("")
	if h.limiter != nil {
		mut.Use(h.limiter.Middleware())
	}
	mut.POST("/connect", h.connect)
	mut.POST("/disconnect", h.disconnect)
	mut.POST("/switch", h.switchChain)
	mut.POST("/dismiss", h.dismiss)
}

func (h *Handler) fail(c *gin.Context, err error) {
	resp, status := Fail(err)
	h.logger.Warn("request failed", map[string]any{
		"path":   c.FullPath(),
		"status": status,
		"error":  resp.Error,
		"reason": resp.Message,
	})
	c.AbortWithStatusJSON(status, resp)
}

type errorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type stateView struct {
	types.ConnectionState
	Error *errorView `json:"error,omitempty"`
}

func newStateView(s types.ConnectionState) stateView {
	v := stateView{ConnectionState: s}
	if s.Err != nil {
		v.Error = &errorView{Code: s.Err.Code(), Message: s.Err.Message()}
	}
	return v
}

func (h *Handler) getState(c *gin.Context) {
	writeOK(c, newStateView(h.wallet.State()))
}

func (h *Handler) listChains(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	chains := h.registry.Chains()
	start := len(chains)
	if page-1 < len(chains)/limit+1 {
		start = min((page-1)*limit, len(chains))
	}
	end := start + limit
	if end > len(chains) {
		end = len(chains)
	}

	resp := OK(chains[start:end])
	resp.Pagination = NewPagination(page, limit, len(chains))
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getChain(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.fail(c, apperror.NewValidation(fmt.Sprintf("invalid chain id %q", c.Param("id")), err))
		return
	}
	chain, err := h.registry.Resolve(types.ChainID(id))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeOK(c, chain)
}

func (h *Handler) listConnectors(c *gin.Context) {
	writeOK(c, h.connectors.Available())
}

type connectRequest struct {
	Connector string `json:"connector" binding:"required"`
}

func (h *Handler) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperror.NewValidation("invalid request body", err))
		return
	}
	kind, err := types.ParseConnectorKind(req.Connector)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.wallet.Connect(c.Request.Context(), kind); err != nil {
		h.fail(c, err)
		return
	}
	writeOK(c, newStateView(h.wallet.State()))
}

func (h *Handler) disconnect(c *gin.Context) {
	if err := h.wallet.Disconnect(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	writeOK(c, newStateView(h.wallet.State()))
}

type switchRequest struct {
	ChainID uint64 `json:"chainId" binding:"required,gt=0"`
}

func (h *Handler) switchChain(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperror.NewValidation("invalid request body", err))
		return
	}
	if err := h.wallet.SwitchChain(c.Request.Context(), types.ChainID(req.ChainID)); err != nil {
		h.fail(c, err)
		return
	}
	writeOK(c, newStateView(h.wallet.State()))
}

func (h *Handler) dismiss(c *gin.Context) {
	if err := h.wallet.Dismiss(); err != nil {
		h.fail(c, err)
		return
	}
	writeOK(c, newStateView(h.wallet.State()))
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperror.NewValidation(fmt.Sprintf("%s must be a positive integer", key), err)
	}
	return n, nil
}
