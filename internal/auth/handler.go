package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-auth/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-auth/internal/shared"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// HandlerConfig tunes cookie behaviour.
type HandlerConfig struct {
	// SecureCookies marks the refresh cookie Secure; enable outside development.
	SecureCookies bool
	// RefreshTTL is the refresh cookie lifetime and should match the token TTL.
	RefreshTTL time.Duration
	// CookiePath scopes the refresh cookie; defaults to /auth.
	CookiePath string
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	config    HandlerConfig
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/auth"
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		config:    cfg,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Get("/verify-email", h.handleVerifyEmail)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
	r.Post("/resend-verification", h.handleResendVerification)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAccess)
		r.Get("/me", h.handleMe)
		r.Post("/logout-all", h.handleLogoutAll)
	})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type userResponse struct {
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

type loginResponse struct {
	Message         string     `json:"message"`
	AccessToken     string     `json:"accessToken"`
	AccessExpiresAt time.Time  `json:"accessExpiresAt"`
	User            PublicUser `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, userResponse{Message: "User registered successfully", User: user})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	message := "Email verified successfully"
	if result.AlreadyVerified {
		message = "Email is already verified"
	}
	httpx.JSON(w, http.StatusOK, userResponse{Message: message, User: result.User})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Login(r.Context(), LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken)
	httpx.JSON(w, http.StatusOK, loginResponse{
		Message:         "Login successful",
		AccessToken:     result.AccessToken,
		AccessExpiresAt: result.AccessExpiresAt,
		User:            result.User,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		h.respondError(w, r, shared.NewError(shared.ErrUnauthorized, msgInvalidSession, nil))
		return
	}
	result, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, shared.ErrUnauthorized) {
			h.clearRefreshCookie(w)
		}
		h.respondError(w, r, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken)
	httpx.JSON(w, http.StatusOK, loginResponse{
		Message:         "Session refreshed",
		AccessToken:     result.AccessToken,
		AccessExpiresAt: result.AccessExpiresAt,
		User:            result.User,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if _, err := h.service.RevokeSessions(r.Context(), principal.UserID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ResendVerificationByEmail(r.Context(), req.Email); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, messageResponse{Message: "If the account exists and is unverified, a new link has been sent"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	user, err := h.service.Profile(r.Context(), principal.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{Message: "ok", User: user})
}

// RequireAccess authenticates the bearer access token and stores the
// principal in the request context.
func (h *Handler) RequireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="odyssey-auth"`)
			h.respondError(w, r, shared.NewError(shared.ErrUnauthorized, msgInvalidSession, nil))
			return
		}
		principal, err := h.service.Authenticate(r.Context(), raw)
		if err != nil {
			if errors.Is(err, shared.ErrUnauthorized) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="odyssey-auth", error="invalid_token"`)
			}
			h.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request data", "request body must be valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request data", "")
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			fields[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("auth request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     h.config.CookiePath,
		MaxAge:   int(h.config.RefreshTTL / time.Second),
		Expires:  time.Now().Add(h.config.RefreshTTL),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     h.config.CookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
