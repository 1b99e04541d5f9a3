package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/service"
	"github.com/prn-tf/workroom/internal/token"
)

// AuthHandler serves registration, login, and profile endpoints.
type AuthHandler struct {
	users  *service.UserService
	tokens *token.Manager
	logger zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *service.UserService, tokens *token.Manager, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: tokens,
		logger: logger.With().Str("handler", "auth").Logger(),
	}
}

// userResponse is the public view of a user record.
type userResponse struct {
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	FullName  string     `json:"full_name,omitempty"`
	Disabled  bool       `json:"disabled"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// tokenResponse is the login reply, matching the historical wire format.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	APIKeyStatus string `json:"api_key_status"`
	Message      string `json:"message"`
}

// Token handles POST /token: form-encoded username/password, with an
// optional "scope" field carrying a replacement API key.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, "could not parse form body")
		return
	}

	out, err := h.users.Authenticate(r.Context(), service.AuthenticateInput{
		Username:  r.PostFormValue("username"),
		Password:  r.PostFormValue("password"),
		NewAPIKey: r.PostFormValue("scope"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	accessToken, err := h.tokens.Issue(out.User.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		APIKeyStatus: string(out.APIKeyStatus),
		Message:      loginMessage(out),
	})
}

// loginMessage renders the human-readable key status for the login reply.
func loginMessage(out *service.AuthenticateOutput) string {
	if out.KeyUpdated {
		return "Login successful. API key updated."
	}
	switch out.APIKeyStatus {
	case service.APIKeyValid:
		return "Login successful."
	case service.APIKeyInvalid:
		return "Login successful, but the stored API key failed validation. Please update it."
	default:
		return "Login successful. API key could not be verified; using the stored key."
	}
}

// registerRequest is the POST /register body.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	APIKey   string `json:"api_key"`
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "could not parse request body")
		return
	}

	user, err := h.users.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		APIKey:   req.APIKey,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(user.Username, user.Email, user.FullName, user.Disabled, user.CreatedAt, user.LastLogin))
}

// Me handles GET /users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, newUserResponse(user.Username, user.Email, user.FullName, user.Disabled, user.CreatedAt, user.LastLogin))
}

// APIKey handles GET /users/me/api_key, returning the masked key.
func (h *AuthHandler) APIKey(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"api_key": user.MaskedAPIKey(),
	})
}

// updateAPIKeyRequest is the POST /users/me/update_api_key body.
type updateAPIKeyRequest struct {
	NewAPIKey string `json:"new_api_key"`
}

// UpdateAPIKey handles POST /users/me/update_api_key.
func (h *AuthHandler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req updateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "could not parse request body")
		return
	}

	user := UserFromContext(r.Context())
	if err := h.users.UpdateAPIKey(r.Context(), user.Username, req.NewAPIKey); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "API key updated successfully.",
	})
}

// newUserResponse builds the public profile view, hiding a zero
// last-login behind omission.
func newUserResponse(username, email, fullName string, disabled bool, createdAt, lastLogin time.Time) userResponse {
	resp := userResponse{
		Username:  username,
		Email:     email,
		FullName:  fullName,
		Disabled:  disabled,
		CreatedAt: createdAt,
	}
	if !lastLogin.IsZero() {
		resp.LastLogin = &lastLogin
	}
	return resp
}
