// Package fakeapp is an in-memory stand-in for the todo application's auth
// API, used by unit tests of the steps and the runner.
package fakeapp

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type user struct {
	id    int
	email string
	hash  []byte
}

// App answers /api/auth/register, /api/auth/login, /api/projects and
// /swagger/index.html.
type App struct {
	secret []byte

	mu     sync.Mutex
	users  map[string]user
	nextID int
}

// New returns an app signing tokens with secret.
func New(secret string) *App {
	return &App{secret: []byte(secret), users: map[string]user{}, nextID: 1}
}

// Reset drops every user, like a schema reset would.
func (a *App) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = map[string]user{}
	a.nextID = 1
}

// Delete removes one user if present.
func (a *App) Delete(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.users, username)
}

// Has reports whether username is registered.
func (a *App) Has(username string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.users[username]
	return ok
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /swagger/index.html", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/auth/register", a.register)
	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.HandleFunc("GET /api/projects", a.projects)
	return mux
}

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *App) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "用户名、邮箱和密码不能为空"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[req.Username]; ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "用户名已存在"})
		return
	}
	for _, u := range a.users {
		if u.email == req.Email {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "邮箱已被使用"})
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": err.Error()})
		return
	}
	id := a.nextID
	a.nextID++
	a.users[req.Username] = user{id: id, email: req.Email, hash: hash}
	writeJSON(w, http.StatusOK, map[string]any{"userId": id, "username": req.Username})
}

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "用户名和密码不能为空"})
		return
	}

	a.mu.Lock()
	u, ok := a.users[req.Username]
	a.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "用户名或密码错误"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  req.Username,
		"uid":  u.id,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
		"role": "user",
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": signed, "userId": u.id, "username": req.Username})
}

// projects stands in for any [Authorize] endpoint: it only checks the token.
func (a *App) projects(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, []any{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
