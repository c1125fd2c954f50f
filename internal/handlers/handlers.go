package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"coin-wallet/internal/auth"
	"coin-wallet/internal/config"
	"coin-wallet/internal/epay"
	"coin-wallet/internal/logging"
	"coin-wallet/internal/middleware"
	"coin-wallet/internal/model"
	"coin-wallet/internal/payment"
	"coin-wallet/internal/store"
)

type Server struct {
	Store   *store.Database
	Config  config.Config
	Epay    *epay.Client
	Payment *payment.Service
}

func NewServer(cfg config.Config) (*Server, error) {
	var s store.Database
	err := s.NewStorage(cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	client := epay.NewClient(cfg.EpayAPIURL, cfg.EpayPID, cfg.EpayKey)
	svc := payment.NewService(&s, &s, &s, cfg.OrderTimeout(), cfg.CoinName)

	return &Server{Store: &s, Config: cfg, Epay: client, Payment: svc}, nil
}

type requestBody struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (s *Server) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var requestBody requestBody
	err := json.NewDecoder(r.Body).Decode(&requestBody)
	if err != nil || requestBody.Login == "" || requestBody.Password == "" {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}

	passwordHash, err := auth.HashPassword(requestBody.Password)
	if err != nil {
		http.Error(w, "Failed to hash the password", http.StatusInternalServerError)
		return
	}

	_, err = s.Store.CreateUser(requestBody.Login, passwordHash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			http.Error(w, "Login already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.issueToken(w, requestBody.Login)
}

func (s *Server) LoginUser(w http.ResponseWriter, r *http.Request) {
	var requestBody requestBody
	err := json.NewDecoder(r.Body).Decode(&requestBody)
	if err != nil {
		http.Error(w, "Bad request format", http.StatusBadRequest)
		return
	}

	user, err := s.Store.GetUserByLogin(requestBody.Login)
	if err != nil {
		http.Error(w, "Invalid login or password", http.StatusUnauthorized)
		return
	}

	if err := auth.CheckPass(user.PasswordHash, requestBody.Password); err != nil {
		http.Error(w, "Invalid login or password", http.StatusUnauthorized)
		return
	}

	s.issueToken(w, requestBody.Login)
}

func (s *Server) issueToken(w http.ResponseWriter, login string) {
	authToken, err := auth.GenerateToken(login, s.Config.JWTSecret)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Authorization", "Bearer "+authToken)

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"token":  authToken,
	})
}

// currentUser resolves the authenticated request to a user row.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	username, err := middleware.ExtractUserFromContext(r)
	if err != nil {
		http.Error(w, "User not found in context", http.StatusUnauthorized)
		return nil, false
	}
	user, err := s.Store.GetUserByLogin(username)
	if err != nil {
		http.Error(w, "The user does not exist", http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	balance, err := s.Store.GetOrCreateBalance(user.ID)
	if err != nil {
		logging.Logg.Error("Failed to read balance", "user_id", user.ID, "error", err)
		http.Error(w, "Failed to read balance", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"user_id":   user.ID,
		"username":  user.Username,
		"balance":   balance,
		"coin_name": s.Config.CoinName,
	})
}

func (s *Server) GetTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	transactions, err := s.Store.GetTransactions(user.ID, limitParam(r, 20))
	if err != nil {
		logging.Logg.Error("Failed to fetch transactions", "user_id", user.ID, "error", err)
		http.Error(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"transactions": transactions,
		"total":        len(transactions),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func limitParam(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 200 {
		return def
	}
	return n
}
