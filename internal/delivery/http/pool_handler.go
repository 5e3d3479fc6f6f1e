package http

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/internal/usecase"
	"github.com/solitack2/sender-service/pkg/httputil"
)

// accountView is the wire form of an account listing entry
type accountView struct {
	ID           uint                 `json:"id"`
	Phone        string               `json:"phone"`
	Name         string               `json:"name,omitempty"`
	Username     string               `json:"username,omitempty"`
	Status       domain.AccountStatus `json:"status"`
	CategoryName string               `json:"category_name,omitempty"`
	ProxyHost    string               `json:"proxy_host,omitempty"`
	TotalSent    int64                `json:"total_sent"`
	SuccessRate  float64              `json:"success_rate"`
	LastError    string               `json:"last_error,omitempty"`
}

func toAccountView(a domain.Account) accountView {
	rate := 0.0
	if a.TotalSent > 0 {
		rate = float64(a.SuccessfulSent) / float64(a.TotalSent)
	}
	name := a.FirstName
	if a.LastName != "" {
		if name != "" {
			name += " "
		}
		name += a.LastName
	}
	return accountView{
		ID:           a.ID,
		Phone:        a.Phone,
		Name:         name,
		Username:     a.Username,
		Status:       a.Status,
		CategoryName: a.CategoryName,
		ProxyHost:    a.ProxyHost,
		TotalSent:    a.TotalSent,
		SuccessRate:  rate,
		LastError:    a.LastError,
	}
}

// addAccountRequest is the wire form of the add-account flow
type addAccountRequest struct {
	Phone      string `json:"phone"`
	SessionRef string `json:"session_ref"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Username   string `json:"username,omitempty"`
	CategoryID *uint  `json:"category_id,omitempty"`
}

// PoolHandler exposes the account pool surface: accounts, categories,
// proxies and settings.
type PoolHandler struct {
	accounts   *usecase.AccountUseCase
	categories domain.CategoryRepository
	proxies    domain.ProxyRepository
	settings   domain.SettingsRepository
	logger     zerolog.Logger
}

// NewPoolHandler creates a new pool handler
func NewPoolHandler(
	accounts *usecase.AccountUseCase,
	categories domain.CategoryRepository,
	proxies domain.ProxyRepository,
	settings domain.SettingsRepository,
	logger zerolog.Logger,
) *PoolHandler {
	return &PoolHandler{
		accounts:   accounts,
		categories: categories,
		proxies:    proxies,
		settings:   settings,
		logger:     logger.With().Str("component", "http_pool").Logger(),
	}
}

// ListAccounts handles GET /accounts
func (h *PoolHandler) ListAccounts(ctx *fasthttp.RequestCtx) {
	var categoryID *uint
	if raw := string(ctx.QueryArgs().Peek("category_id")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			httputil.WriteErrorResponse(ctx, "invalid category_id", fasthttp.StatusBadRequest)
			return
		}
		id := uint(v)
		categoryID = &id
	}

	accounts, err := h.accounts.List(ctx, categoryID)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}

	views := make([]accountView, len(accounts))
	for i, a := range accounts {
		views[i] = toAccountView(a)
	}
	httputil.WriteResponse(ctx, views)
}

// AddAccount handles POST /accounts
func (h *PoolHandler) AddAccount(ctx *fasthttp.RequestCtx) {
	var req addAccountRequest
	if err := httputil.ReadJSON(ctx, &req); err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	account, err := h.accounts.AddAccount(ctx, usecase.AddAccountRequest{
		Phone:      req.Phone,
		SessionRef: req.SessionRef,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Username:   req.Username,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		if account == nil {
			httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
			return
		}
		// The account was registered but failed its validation connect;
		// report both so the front end can re-run authentication.
		httputil.WriteResponseWithStatus(ctx, map[string]interface{}{
			"account": toAccountView(*account),
			"warning": err.Error(),
		}, fasthttp.StatusAccepted)
		return
	}

	httputil.WriteResponseWithStatus(ctx, toAccountView(*account), fasthttp.StatusCreated)
}

// AssignCategory handles POST /accounts/{id}/category
func (h *PoolHandler) AssignCategory(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	var req struct {
		CategoryID *uint `json:"category_id"`
	}
	if err := httputil.ReadJSON(ctx, &req); err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	if err := h.accounts.AssignCategory(ctx, id, req.CategoryID); err != nil {
		status := fasthttp.StatusInternalServerError
		if errors.Is(err, domain.ErrAccountNotFound) {
			status = fasthttp.StatusNotFound
		}
		httputil.WriteError(ctx, err, status)
		return
	}

	httputil.WriteResponse(ctx, map[string]uint{"account_id": id})
}

// ListCategories handles GET /categories
func (h *PoolHandler) ListCategories(ctx *fasthttp.RequestCtx) {
	categories, err := h.categories.List(ctx)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}
	httputil.WriteResponse(ctx, categories)
}

// CreateCategory handles POST /categories
func (h *PoolHandler) CreateCategory(ctx *fasthttp.RequestCtx) {
	var req struct {
		Name string `json:"name"`
	}
	if err := httputil.ReadJSON(ctx, &req); err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}
	if req.Name == "" {
		httputil.WriteErrorResponse(ctx, "category name is required", fasthttp.StatusBadRequest)
		return
	}

	category := &domain.Category{Name: req.Name}
	if err := h.categories.Create(ctx, category); err != nil {
		status := fasthttp.StatusInternalServerError
		if errors.Is(err, domain.ErrCategoryAlreadyExists) {
			status = fasthttp.StatusConflict
		}
		httputil.WriteError(ctx, err, status)
		return
	}

	httputil.WriteResponseWithStatus(ctx, category, fasthttp.StatusCreated)
}

// ListProxies handles GET /proxies
func (h *PoolHandler) ListProxies(ctx *fasthttp.RequestCtx) {
	proxies, err := h.proxies.ListActive(ctx)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}
	httputil.WriteResponse(ctx, proxies)
}

// CreateProxy handles POST /proxies
func (h *PoolHandler) CreateProxy(ctx *fasthttp.RequestCtx) {
	var req struct {
		Scheme   string `json:"scheme"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username,omitempty"`
		Password string `json:"password,omitempty"`
	}
	if err := httputil.ReadJSON(ctx, &req); err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}
	if req.Host == "" || req.Port == 0 {
		httputil.WriteErrorResponse(ctx, "proxy host and port are required", fasthttp.StatusBadRequest)
		return
	}
	if req.Scheme == "" {
		req.Scheme = "socks5"
	}

	proxy := &domain.Proxy{
		Scheme:   req.Scheme,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		IsActive: true,
	}
	if err := h.proxies.Create(ctx, proxy); err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}

	httputil.WriteResponseWithStatus(ctx, proxy, fasthttp.StatusCreated)
}

// AutoAssignProxies handles POST /proxies/auto-assign
func (h *PoolHandler) AutoAssignProxies(ctx *fasthttp.RequestCtx) {
	assigned, err := h.accounts.AutoAssignProxies(ctx)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}

	h.logger.Info().Int("assigned", assigned).Msg("proxies auto-assigned")
	httputil.WriteResponse(ctx, map[string]int{"assigned": assigned})
}

// GetSettings handles GET /settings
func (h *PoolHandler) GetSettings(ctx *fasthttp.RequestCtx) {
	settings, err := h.settings.All(ctx)
	if err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
		return
	}
	httputil.WriteResponse(ctx, settings)
}

// PutSettings handles PUT /settings
func (h *PoolHandler) PutSettings(ctx *fasthttp.RequestCtx) {
	var req map[string]string
	if err := httputil.ReadJSON(ctx, &req); err != nil {
		httputil.WriteError(ctx, err, fasthttp.StatusBadRequest)
		return
	}

	for key, value := range req {
		if err := h.settings.Set(ctx, key, value); err != nil {
			httputil.WriteError(ctx, err, fasthttp.StatusInternalServerError)
			return
		}
	}

	h.logger.Info().Int("keys", len(req)).Msg("settings updated")
	httputil.WriteResponse(ctx, req)
}
