package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/restockd/restockd/internal/bulk"
	"github.com/restockd/restockd/internal/models"
)

// Store is the persistence surface the HTTP handlers need.
type Store interface {
	InsertProduct(ctx context.Context, p *models.Product) error
	ListProducts(ctx context.Context) ([]*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	UpsertRetailer(ctx context.Context, name string) (*models.Retailer, error)
	InsertLink(ctx context.Context, link *models.ProductRetailerLink) error
	DeleteLink(ctx context.Context, id uuid.UUID) (bool, error)
	ListChecks(ctx context.Context, linkID uuid.UUID, limit int) ([]*models.AvailabilityCheck, error)
	UpsertRate(ctx context.Context, from, to string, rate float64, source models.RateSource) error
	GetRate(ctx context.Context, from, to string) (*models.ExchangeRate, error)
}

// Runner triggers bulk availability checks. Satisfied by bulk.Orchestrator.
type Runner interface {
	RunAsync(ctx context.Context) error
}

type Handlers struct {
	store  Store
	runner Runner
	logger *slog.Logger
}

func NewHandlers(store Store, runner Runner, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		runner: runner,
		logger: logger,
	}
}

// Routes mounts all API endpoints on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Get("/", h.ListProducts)
		r.Post("/{productID}/links", h.AddLink)
	})
	r.Route("/links", func(r chi.Router) {
		r.Delete("/{linkID}", h.DeleteLink)
		r.Get("/{linkID}/checks", h.ListChecks)
	})
	r.Post("/checks/run", h.TriggerRun)
	r.Get("/rates", h.GetRate)
	r.Put("/rates", h.UpsertRate)
}

type CreateProductRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	product := &models.Product{Name: req.Name}
	if err := h.store.InsertProduct(r.Context(), product); err != nil {
		h.logger.Error("failed to create product", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	h.respondJSON(w, http.StatusCreated, product)
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	if products == nil {
		products = []*models.Product{}
	}
	h.respondJSON(w, http.StatusOK, products)
}

type AddLinkRequest struct {
	Retailer string `json:"retailer"`
	URL      string `json:"url"`
	Label    string `json:"label,omitempty"`
}

func (h *Handlers) AddLink(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req AddLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Retailer == "" {
		h.respondError(w, http.StatusBadRequest, "retailer is required")
		return
	}
	if !validTrackingURL(req.URL) {
		h.respondError(w, http.StatusBadRequest, "url must be a valid http(s) URL")
		return
	}

	product, err := h.store.GetProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to load product", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}

	retailer, err := h.store.UpsertRetailer(r.Context(), req.Retailer)
	if err != nil {
		h.logger.Error("failed to upsert retailer", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to store retailer")
		return
	}

	link := &models.ProductRetailerLink{
		ProductID:  productID,
		RetailerID: retailer.ID,
		URL:        req.URL,
		Label:      req.Label,
	}
	if err := h.store.InsertLink(r.Context(), link); err != nil {
		h.logger.Error("failed to insert link", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to store link")
		return
	}

	h.respondJSON(w, http.StatusCreated, link)
}

func (h *Handlers) DeleteLink(w http.ResponseWriter, r *http.Request) {
	linkID, err := uuid.Parse(chi.URLParam(r, "linkID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid link ID")
		return
	}

	deleted, err := h.store.DeleteLink(r.Context(), linkID)
	if err != nil {
		h.logger.Error("failed to delete link", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to delete link")
		return
	}
	if !deleted {
		h.respondError(w, http.StatusNotFound, "link not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListChecks(w http.ResponseWriter, r *http.Request) {
	linkID, err := uuid.Parse(chi.URLParam(r, "linkID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid link ID")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	checks, err := h.store.ListChecks(r.Context(), linkID, limit)
	if err != nil {
		h.logger.Error("failed to list checks", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list checks")
		return
	}

	if checks == nil {
		checks = []*models.AvailabilityCheck{}
	}
	h.respondJSON(w, http.StatusOK, checks)
}

type TriggerRunResponse struct {
	Status string `json:"status"`
}

// TriggerRun starts a bulk availability check in the background. The run
// guard is taken before responding, so 202 means the run is underway and a
// run already in flight yields 409 without racing a concurrent trigger.
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.RunAsync(context.Background()); err != nil {
		if errors.Is(err, bulk.ErrRunInProgress) {
			h.respondError(w, http.StatusConflict, "a check run is already in progress")
			return
		}
		h.logger.Error("failed to start check run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start check run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, TriggerRunResponse{Status: "started"})
}

// GetRate returns the stored exchange rate for one currency pair.
func (h *Handlers) GetRate(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if len(from) != 3 || len(to) != 3 {
		h.respondError(w, http.StatusBadRequest, "from and to must be ISO currency codes")
		return
	}

	rate, err := h.store.GetRate(r.Context(), from, to)
	if err != nil {
		h.logger.Error("failed to load rate", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load rate")
		return
	}
	if rate == nil {
		h.respondError(w, http.StatusNotFound, "no rate stored for pair")
		return
	}

	h.respondJSON(w, http.StatusOK, rate)
}

type UpsertRateRequest struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
}

// UpsertRate stores a manually entered exchange rate. Manual rates take
// precedence over api-sourced ones on lookup.
func (h *Handlers) UpsertRate(w http.ResponseWriter, r *http.Request) {
	var req UpsertRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.From) != 3 || len(req.To) != 3 {
		h.respondError(w, http.StatusBadRequest, "from and to must be ISO currency codes")
		return
	}
	if req.Rate <= 0 {
		h.respondError(w, http.StatusBadRequest, "rate must be positive")
		return
	}

	if err := h.store.UpsertRate(r.Context(), req.From, req.To, req.Rate, models.RateSourceManual); err != nil {
		h.logger.Error("failed to upsert rate", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to store rate")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validTrackingURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
