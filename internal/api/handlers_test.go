package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restockd/restockd/internal/bulk"
	"github.com/restockd/restockd/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product
	links    map[uuid.UUID]*models.ProductRetailerLink
	checks   map[uuid.UUID][]*models.AvailabilityCheck
	rates    map[string]*models.ExchangeRate
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: make(map[uuid.UUID]*models.Product),
		links:    make(map[uuid.UUID]*models.ProductRetailerLink),
		checks:   make(map[uuid.UUID][]*models.AvailabilityCheck),
		rates:    make(map[string]*models.ExchangeRate),
	}
}

func (s *fakeStore) InsertProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	s.products[p.ID] = p
	return nil
}

func (s *fakeStore) ListProducts(_ context.Context) ([]*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Product
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id], nil
}

func (s *fakeStore) UpsertRetailer(_ context.Context, name string) (*models.Retailer, error) {
	return &models.Retailer{ID: uuid.New(), Name: name}, nil
}

func (s *fakeStore) InsertLink(_ context.Context, link *models.ProductRetailerLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link.ID = uuid.New()
	link.CreatedAt = time.Now()
	s.links[link.ID] = link
	return nil
}

func (s *fakeStore) DeleteLink(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[id]; !ok {
		return false, nil
	}
	delete(s.links, id)
	return true, nil
}

func (s *fakeStore) ListChecks(_ context.Context, linkID uuid.UUID, limit int) ([]*models.AvailabilityCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	checks := s.checks[linkID]
	if len(checks) > limit {
		checks = checks[:limit]
	}
	return checks, nil
}

func (s *fakeStore) UpsertRate(_ context.Context, from, to string, rate float64, source models.RateSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[from+"/"+to] = &models.ExchangeRate{
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         rate,
		Source:       source,
		FetchedAt:    time.Now(),
	}
	return nil
}

func (s *fakeStore) GetRate(_ context.Context, from, to string) (*models.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rates[from+"/"+to], nil
}

type fakeRunner struct {
	mu   sync.Mutex
	err  error
	runs int
}

func (r *fakeRunner) RunAsync(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.runs++
	return nil
}

func newTestRouter(store Store, runner Runner) chi.Router {
	h := NewHandlers(store, runner, slog.Default())
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return r
}

func TestCreateProduct(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store, &fakeRunner{})

	body := bytes.NewBufferString(`{"name": "Mechanical Keyboard"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var product models.Product
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&product))
	assert.Equal(t, "Mechanical Keyboard", product.Name)
	assert.NotEqual(t, uuid.Nil, product.ID)
}

func TestCreateProductRejectsEmptyName(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeRunner{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddLink(t *testing.T) {
	store := newFakeStore()
	product := &models.Product{Name: "Monitor"}
	require.NoError(t, store.InsertProduct(context.Background(), product))

	router := newTestRouter(store, &fakeRunner{})

	body := bytes.NewBufferString(`{"retailer": "ExampleShop", "url": "https://shop.example.com/monitor"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+product.ID.String()+"/links", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var link models.ProductRetailerLink
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&link))
	assert.Equal(t, product.ID, link.ProductID)
	assert.Equal(t, "https://shop.example.com/monitor", link.URL)
}

func TestAddLinkUnknownProduct(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeRunner{})

	body := bytes.NewBufferString(`{"retailer": "ExampleShop", "url": "https://shop.example.com/x"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+uuid.NewString()+"/links", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddLinkRejectsBadURL(t *testing.T) {
	store := newFakeStore()
	product := &models.Product{Name: "Monitor"}
	require.NoError(t, store.InsertProduct(context.Background(), product))

	router := newTestRouter(store, &fakeRunner{})

	body := bytes.NewBufferString(`{"retailer": "ExampleShop", "url": "not-a-url"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+product.ID.String()+"/links", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteLink(t *testing.T) {
	store := newFakeStore()
	link := &models.ProductRetailerLink{ProductID: uuid.New(), RetailerID: uuid.New(), URL: "https://shop.example.com/a"}
	require.NoError(t, store.InsertLink(context.Background(), link))

	router := newTestRouter(store, &fakeRunner{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/links/"+link.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/links/"+link.ID.String(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListChecksEmpty(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/links/"+uuid.NewString()+"/checks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestTriggerRun(t *testing.T) {
	runner := &fakeRunner{}
	router := newTestRouter(newFakeStore(), runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checks/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, runner.runs)
}

func TestTriggerRunConflict(t *testing.T) {
	// 202 must mean the run actually started; an in-flight run is a 409.
	runner := &fakeRunner{err: bulk.ErrRunInProgress}
	router := newTestRouter(newFakeStore(), runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checks/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, runner.runs)
}

func TestUpsertRate(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store, &fakeRunner{})

	body := bytes.NewBufferString(`{"from": "USD", "to": "EUR", "rate": 0.91}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/rates", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	stored := store.rates["USD/EUR"]
	require.NotNil(t, stored)
	assert.InDelta(t, 0.91, stored.Rate, 1e-9)
	assert.Equal(t, models.RateSourceManual, stored.Source)
}

func TestGetRate(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.UpsertRate(context.Background(), "USD", "EUR", 0.91, models.RateSourceManual))

	router := newTestRouter(store, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rates?from=USD&to=EUR", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var rate models.ExchangeRate
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rate))
	assert.Equal(t, "USD", rate.FromCurrency)
	assert.InDelta(t, 0.91, rate.Rate, 1e-9)
}

func TestGetRateMissing(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rates?from=USD&to=EUR", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertRateRejectsNonPositive(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeRunner{})

	body := bytes.NewBufferString(`{"from": "USD", "to": "EUR", "rate": 0}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/rates", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
