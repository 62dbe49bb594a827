// Package apitest is an in-memory stand-in for the wedding-shop backend,
// used by package tests. It speaks the same REST contract as the real API
// and can be told to fail specific calls.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const signingSecret = "apitest-secret"

type Account struct {
	User     domain.User
	Password string
	Locked   bool
	// RequireVerified makes login fail until the account is verified.
	RequireVerified bool
}

type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Header        http.Header
	Body          []byte
}

type failure struct {
	method  string
	prefix  string
	status  int
	message string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*Account // by email
	tokens   map[string]string   // token -> email
	carts    map[string][]domain.CartLine
	orders   map[string]*domain.Order
	owners   map[string]string // order id -> email
	catalog  map[domain.ItemType][]domain.CatalogEntity
	failures []failure
	requests []Request
	otp      string
	seq      int
	gate     chan struct{}
	// TokenTTL controls the exp claim of issued tokens.
	TokenTTL time.Duration
}

func NewServer() *Server {
	s := &Server{
		accounts: map[string]*Account{},
		tokens:   map[string]string{},
		carts:    map[string][]domain.CartLine{},
		orders:   map[string]*domain.Order{},
		owners:   map[string]string{},
		catalog:  map[domain.ItemType][]domain.CatalogEntity{},
		otp:      "123456",
		TokenTTL: time.Hour,
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record, s.inject)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Post("/signup", s.signup)
		r.Get("/me", s.authed(s.me))
		r.Post("/logout", s.logout)
		r.Post("/send-verification", s.authed(s.sendVerification))
		r.Post("/verify-email", s.authed(s.verifyEmail))
		r.Post("/forgot-password", s.forgotPassword)
		r.Post("/reset-password", s.resetPassword)
		r.Post("/change-password", s.authed(s.changePassword))
	})
	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", s.authed(s.getCart))
		r.Delete("/", s.authed(s.clearCart))
		r.Post("/items", s.authed(s.addItem))
		r.Patch("/items/{line_id}", s.authed(s.updateItem))
		r.Put("/items/{line_id}/booking", s.authed(s.setBooking))
		r.Delete("/items/{line_id}", s.authed(s.removeItem))
	})
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", s.authed(s.createOrder))
		r.Get("/me", s.authed(s.myOrders))
		r.Get("/{order_id}", s.authed(s.getOrder))
		r.Patch("/{order_id}/status", s.authed(s.updateOrderStatus))
	})
	for _, kind := range domain.ItemTypes {
		r.Route("/api/"+kind.Plural(), func(r chi.Router) {
			r.Get("/", s.listCatalog(kind))
			r.Get("/search", s.searchCatalog(kind))
			r.Get("/{id}", s.getCatalog(kind))
		})
	}
	return r
}

// ---- test controls ----

func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := a
	if acc.User.Role == "" {
		acc.User.Role = domain.RoleUser
	}
	if acc.User.ID == "" {
		s.seq++
		acc.User.ID = fmt.Sprintf("u%d", s.seq)
	}
	s.accounts[acc.User.Email] = &acc
}

// IssueToken returns a valid token for an existing account.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(email, s.TokenTTL)
}

// IssueExpiredToken returns a token whose exp claim is in the past.
func (s *Server) IssueExpiredToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(email, -time.Minute)
}

// RevokeTokens makes every issued token invalid.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
}

func (s *Server) SetCart(email string, lines []domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[email] = cloneLines(lines)
}

func (s *Server) Cart(email string) []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.carts[email])
}

func (s *Server) AddCatalog(entities ...domain.CatalogEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.catalog[e.Kind] = append(s.catalog[e.Kind], e)
	}
}

func (s *Server) SetOrderStatus(id string, status domain.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.Status = status
		if status.Paid() {
			o.PaymentStatus = "paid"
			o.PaidAmount = o.TotalAmount
			o.RemainingAmount = 0
		}
	}
}

// FailNext makes the next request matching method and path prefix answer
// with status. An empty message produces a body without one.
func (s *Server) FailNext(method, pathPrefix string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, prefix: pathPrefix, status: status, message: message})
}

// Hold blocks every cart mutation until Release is called.
func (s *Server) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

func (s *Server) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request matching method and path prefix.
func (s *Server) LastRequest(method, pathPrefix string) (Request, bool) {
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method && strings.HasPrefix(reqs[i].Path, pathPrefix) {
			return reqs[i], true
		}
	}
	return Request{}, false
}

func (s *Server) CountRequests(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

// ---- middleware ----

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Header:        r.Header.Clone(),
			Body:          body,
		})
		gate := s.gate
		s.mu.Unlock()
		if gate != nil && r.Method != http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/cart") {
			<-gate
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		for i, f := range s.failures {
			if f.method == r.Method && strings.HasPrefix(r.URL.Path, f.prefix) {
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
				s.mu.Unlock()
				if f.message == "" {
					w.WriteHeader(f.status)
					return
				}
				writeJSON(w, f.status, map[string]any{"success": false, "message": f.message})
				return
			}
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		email, ok := s.tokens[raw]
		s.mu.Unlock()
		if raw == "" || !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid or expired token"})
			return
		}
		h(w, r, email)
	}
}

func (s *Server) issueLocked(email string, ttl time.Duration) string {
	acc := s.accounts[email]
	s.seq++
	claims := jwt.MapClaims{
		"sub":  acc.User.ID,
		"role": string(acc.User.Role),
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
		"jti":  strconv.Itoa(s.seq),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingSecret))
	if err != nil {
		panic(err)
	}
	s.tokens[signed] = email
	return signed
}

// ---- auth ----

type authData struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(req.Email)]
	switch {
	case !ok || acc.Password != req.Password:
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid email or password"})
	case acc.Locked:
		writeJSON(w, http.StatusLocked, map[string]any{"success": false, "message": "Account locked after too many attempts"})
	case acc.RequireVerified && !acc.User.Verified:
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Please verify your email"})
	default:
		writeJSON(w, http.StatusOK, ok200(authData{Token: s.issueLocked(acc.User.Email, s.TokenTTL), User: acc.User}))
	}
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(req.Email)
	if _, exists := s.accounts[email]; exists {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "Email already registered"})
		return
	}
	s.seq++
	acc := &Account{
		User:     domain.User{ID: fmt.Sprintf("u%d", s.seq), Name: req.Name, Email: email, Role: domain.RoleUser},
		Password: req.Password,
	}
	s.accounts[email] = acc
	writeJSON(w, http.StatusCreated, ok200(authData{Token: s.issueLocked(email, s.TokenTTL), User: acc.User}))
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// legacy shape: bare user object
	writeJSON(w, http.StatusOK, s.accounts[email].User)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.tokens, raw)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

func (s *Server) sendVerification(w http.ResponseWriter, _ *http.Request, _ string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Verification mail sent"})
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		OTP string `json:"otp"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.OTP != s.otp {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid or expired code"})
		return
	}
	s.accounts[email].User.Verified = true
	writeJSON(w, http.StatusOK, ok200(s.accounts[email].User))
}

func (s *Server) forgotPassword(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Reset mail sent"})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Token != "reset-ok" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Reset link expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[email]
	if acc.Password != req.CurrentPassword {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Current password is incorrect"})
		return
	}
	acc.Password = req.NewPassword
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- cart ----

type cartItemReq struct {
	ItemID   string               `json:"itemId"`
	ItemType domain.ItemType      `json:"itemType"`
	Name     string               `json:"name"`
	Image    string               `json:"image"`
	Price    float64              `json:"price"`
	Quantity int                  `json:"quantity"`
	Booking  *domain.BookingRange `json:"bookingRange"`
}

func (s *Server) getCart(w http.ResponseWriter, _ *http.Request, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, ok200(map[string]any{"items": nonNil(s.carts[email])}))
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request, email string) {
	var req cartItemReq
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[email]
	id := domain.NewLineID(req.ItemType, req.ItemID)
	found := false
	for i := range lines {
		if lines[i].ID() == id {
			lines[i].Quantity += req.Quantity
			if req.Booking != nil {
				lines[i].Booking = req.Booking
			}
			found = true
		}
	}
	if !found {
		lines = append(lines, domain.CartLine{
			ItemID: req.ItemID, ItemType: req.ItemType, Name: req.Name, Image: req.Image,
			Price: req.Price, Quantity: req.Quantity, Booking: req.Booking,
		})
	}
	s.carts[email] = lines
	writeJSON(w, http.StatusCreated, ok200(map[string]any{"items": lines}))
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.findLine(email, chi.URLParam(r, "line_id"))
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Item not in cart"})
		return
	}
	s.carts[email][idx].Quantity = req.Quantity
	writeJSON(w, http.StatusOK, ok200(map[string]any{"items": s.carts[email]}))
}

func (s *Server) setBooking(w http.ResponseWriter, r *http.Request, email string) {
	var req domain.BookingRange
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.findLine(email, chi.URLParam(r, "line_id"))
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Item not in cart"})
		return
	}
	s.carts[email][idx].Booking = &req
	writeJSON(w, http.StatusOK, ok200(map[string]any{"items": s.carts[email]}))
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.findLine(email, chi.URLParam(r, "line_id"))
	if idx >= 0 {
		lines := s.carts[email]
		s.carts[email] = append(lines[:idx], lines[idx+1:]...)
	}
	writeJSON(w, http.StatusOK, ok200(map[string]any{"items": nonNil(s.carts[email])}))
}

func (s *Server) clearCart(w http.ResponseWriter, _ *http.Request, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, email)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cart cleared"})
}

func (s *Server) findLine(email, lineID string) int {
	for i, l := range s.carts[email] {
		if string(l.ID()) == lineID {
			return i
		}
	}
	return -1
}

// ---- orders ----

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		Items []domain.OrderLine `json:"items"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Order has no items"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if o, ok := s.orders["key:"+key]; ok {
			writeJSON(w, http.StatusOK, ok200(o))
			return
		}
	}

	s.seq++
	order := &domain.Order{
		ID:            fmt.Sprintf("o%d", s.seq),
		Status:        domain.OrderStatusDraft,
		PaymentStatus: "unpaid",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	for _, item := range req.Items {
		line := item
		for _, c := range s.carts[email] {
			if c.ItemID == item.ItemID && c.ItemType == item.ItemType {
				line.Name, line.Image, line.Price = c.Name, c.Image, c.Price
			}
		}
		order.Items = append(order.Items, line)
		order.TotalAmount += line.Price * float64(line.Quantity)
	}
	order.RemainingAmount = order.TotalAmount
	s.orders[order.ID] = order
	s.owners[order.ID] = email
	if key != "" {
		s.orders["key:"+key] = order
	}
	writeJSON(w, http.StatusCreated, ok200(order))
}

func (s *Server) myOrders(w http.ResponseWriter, _ *http.Request, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Order{}
	for id, o := range s.orders {
		if !strings.HasPrefix(id, "key:") && s.owners[id] == email {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	// legacy shape: bare array
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "order_id")
	o, ok := s.orders[id]
	if !ok || s.owners[id] != email {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Order not found"})
		return
	}
	writeJSON(w, http.StatusOK, ok200(o))
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		Status domain.OrderStatus `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts[email].User.Role != domain.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Admin access required"})
		return
	}
	o, ok := s.orders[chi.URLParam(r, "order_id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Order not found"})
		return
	}
	o.Status = req.Status
	writeJSON(w, http.StatusOK, ok200(o))
}

// ---- catalog ----

func (s *Server) listCatalog(kind domain.ItemType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 10
		}
		s.mu.Lock()
		all := append([]domain.CatalogEntity(nil), s.catalog[kind]...)
		s.mu.Unlock()
		if r.URL.Query().Get("sortBy") == "price" {
			desc := r.URL.Query().Get("order") == "desc"
			sort.SliceStable(all, func(i, j int) bool {
				if desc {
					return all[i].Price > all[j].Price
				}
				return all[i].Price < all[j].Price
			})
		}
		total := len(all)
		pages := (total + limit - 1) / limit
		start := (page - 1) * limit
		end := start + limit
		if start > total {
			start = total
		}
		if end > total {
			end = total
		}
		writeJSON(w, http.StatusOK, ok200(domain.Page[domain.CatalogEntity]{
			Items: nonNilEntities(all[start:end]),
			Pagination: domain.Pagination{
				TotalItems:  total,
				CurrentPage: page,
				TotalPages:  pages,
				HasNextPage: page < pages,
				HasPrevPage: page > 1,
			},
		}))
	}
}

func (s *Server) searchCatalog(kind domain.ItemType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.ToLower(r.URL.Query().Get("q"))
		s.mu.Lock()
		defer s.mu.Unlock()
		out := []domain.CatalogEntity{}
		for _, e := range s.catalog[kind] {
			if strings.Contains(strings.ToLower(e.Name), q) {
				out = append(out, e)
			}
		}
		// legacy shape: bare array
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) getCatalog(kind domain.ItemType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, e := range s.catalog[kind] {
			if e.ID == id {
				writeJSON(w, http.StatusOK, ok200(e))
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": fmt.Sprintf("%s not found", kind)})
	}
}

// ---- helpers ----

func ok200(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, _ := readBody(r)
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid JSON body"})
		return false
	}
	return true
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	for i, l := range lines {
		out[i] = l.Clone()
	}
	return out
}

func nonNil(lines []domain.CartLine) []domain.CartLine {
	if lines == nil {
		return []domain.CartLine{}
	}
	return lines
}

func nonNilEntities(e []domain.CatalogEntity) []domain.CatalogEntity {
	if e == nil {
		return []domain.CatalogEntity{}
	}
	return e
}
