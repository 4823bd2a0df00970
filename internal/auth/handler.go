package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sercop/facilitador-api/internal/httputil"
	"github.com/sercop/facilitador-api/internal/logging"
	"github.com/sercop/facilitador-api/internal/user"
)

// Rate limit purposes, one fixed window per client IP each.
const (
	purposeLogin    = "login"
	purposeRegister = "register"
	purposeResend   = "resend"
	purposeVerify   = "verify"
)

// User-facing messages.
const (
	msgLoginOK         = "Sesión iniciada correctamente"
	msgRegisterOK      = "Registro exitoso. Revisa tu correo."
	msgResendOK        = "Código reenviado correctamente"
	msgVerifyOK        = "Email verificado correctamente"
	msgLogoutOK        = "Sesión cerrada correctamente"
	msgInvalidBody     = "Cuerpo de la solicitud inválido"
	msgInvalidField    = "Dato inválido en el campo "
	msgBadCredentials  = "Usuario o contraseña incorrectos"
	msgNotVerified     = "Debes verificar tu correo antes de iniciar sesión"
	msgEmailTaken      = "El correo ya está registrado"
	msgUsernameTaken   = "El nombre de usuario ya está en uso"
	msgAlreadyVerified = "El correo ya fue verificado"
	msgUserNotFound    = "Usuario no encontrado"
	msgBadCode         = "Código incorrecto"
	msgCodeExpired     = "El código ha expirado. Solicita uno nuevo."
	msgTooManyAttempts = "Demasiados intentos. Solicita un nuevo código."
	msgTooManyRequests = "Demasiadas solicitudes. Intenta más tarde."
	msgCooldown        = "Espera un momento antes de solicitar otro código"
	msgMissingToken    = "Token no proporcionado"
	msgInvalidToken    = "Token inválido o expirado"
	msgInternal        = "Error interno del servidor"
)

// RateLimiter throttles requests per client IP and resends per email.
// *ratelimit.Limiter satisfies it.
type RateLimiter interface {
	Allow(ctx context.Context, ip, purpose string) (bool, error)
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
}

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter
}

// NewHandler wires the handlers. A nil rateLimiter disables throttling.
func NewHandler(service *Service, rateLimiter RateLimiter) *Handler {
	return &Handler{service: service, rateLimiter: rateLimiter}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Telefono string `json:"telefono"`
	Password string `json:"password"`
}

// ResendCodeRequest represents the resend verification code request
type ResendCodeRequest struct {
	Email string `json:"email"`
}

// VerifyCodeRequest represents the email verification request
type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ValidateRequest carries a session token to check
type ValidateRequest struct {
	Token string `json:"token"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Message  string `json:"message"`
}

// ValidateResponse reports whether a token resolves to a user
type ValidateResponse struct {
	Valid   bool           `json:"valid"`
	User    *user.Identity `json:"user,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Login handles user authentication
// @Summary      Log in
// @Description  Authenticate with username and password. Returns the account's permanent session token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Credentials"
// @Success      200 {object} LoginResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      403 {object} httputil.ErrorResponse "Email not verified"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, logger, purposeLogin) {
		return
	}

	var req LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, msgInvalidBody, httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"username": req.Username})

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondServiceError(w, logger, "login", err)
		return
	}

	logger.Info("user logged in")
	respondJSON(w, LoginResponse{
		Token:    result.Token,
		Username: result.Username,
		Email:    result.Email,
		Message:  msgLoginOK,
	}, http.StatusOK)
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create an unverified account. A six-digit verification code is mailed to the address.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration data"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request, validation error or email already registered"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, logger, purposeRegister) {
		return
	}

	var req RegisterRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		respondError(w, msgInvalidBody, httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email, "username": req.Username})

	created, err := h.service.Register(r.Context(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Telefono,
		Password: req.Password,
	})
	if err != nil {
		h.respondServiceError(w, logger, "registration", err)
		return
	}

	logger.Info("user registered", "user_id", created.ID.String())
	httputil.RespondMessage(w, msgRegisterOK, http.StatusOK)
}

// ResendCode handles verification code reissue
// @Summary      Resend verification code
// @Description  Replace the pending verification code and mail the new one. The previous code stops working.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResendCodeRequest true "Account email"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or email already verified"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests or cooldown active"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/resend-code [post]
func (h *Handler) ResendCode(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, logger, purposeResend) {
		return
	}

	var req ResendCodeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid resend code request body", "error", err.Error())
		respondError(w, msgInvalidBody, httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(req.Email)
	logger = logger.WithFields(map[string]any{"email": email})

	if h.rateLimiter != nil && email != "" {
		onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), email)
		if err != nil {
			logger.Error("failed to check email cooldown", "error", err.Error())
		} else if onCooldown {
			logger.Warn("email on cooldown")
			respondError(w, msgCooldown, httputil.CodeCooldownActive, http.StatusTooManyRequests)
			return
		}
	}

	if err := h.service.ResendCode(r.Context(), email); err != nil {
		h.respondServiceError(w, logger, "resend code", err)
		return
	}

	if h.rateLimiter != nil {
		if err := h.rateLimiter.SetEmailCooldown(r.Context(), email); err != nil {
			logger.Error("failed to set email cooldown", "error", err.Error())
		}
	}

	logger.Info("verification code resent")
	httputil.RespondMessage(w, msgResendOK, http.StatusOK)
}

// VerifyCode handles email verification
// @Summary      Verify email
// @Description  Confirm ownership of the email with the mailed six-digit code.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body VerifyCodeRequest true "Email and code"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request, wrong or expired code"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests or attempts"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/verify-code [post]
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, logger, purposeVerify) {
		return
	}

	var req VerifyCodeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid verify code request body", "error", err.Error())
		respondError(w, msgInvalidBody, httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.service.VerifyCode(r.Context(), req.Email, req.Code); err != nil {
		h.respondServiceError(w, logger, "verification", err)
		return
	}

	logger.Info("email verified")
	httputil.RespondMessage(w, msgVerifyOK, http.StatusOK)
}

// Validate checks a token sent in the request body
// @Summary      Validate session token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ValidateRequest true "Session token"
// @Success      200 {object} ValidateResponse
// @Failure      401 {object} ValidateResponse "Missing or invalid token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/validate [post]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ValidateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid validate request body", "error", err.Error())
		req.Token = ""
	}

	identity, err := h.service.Validate(r.Context(), req.Token)
	h.respondIdentity(w, logger, identity, err)
}

// Me returns the user owning the bearer token
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ValidateResponse
// @Failure      401 {object} ValidateResponse "Missing or invalid token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	identity, err := h.service.Me(r.Context(), ExtractBearer(r.Header.Get("Authorization")))
	h.respondIdentity(w, logger, identity, err)
}

// Logout clears the session token of the authenticated user
// @Summary      Log out
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} httputil.MessageResponse
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := h.service.Logout(r.Context(), ExtractBearer(r.Header.Get("Authorization"))); err != nil {
		h.respondServiceError(w, logger, "logout", err)
		return
	}

	if identity, ok := GetIdentityFromContext(r.Context()); ok {
		logger = logger.WithFields(map[string]any{"username": identity.Username})
	}
	logger.Info("user logged out")
	httputil.RespondMessage(w, msgLogoutOK, http.StatusOK)
}

func (h *Handler) respondIdentity(w http.ResponseWriter, logger *logging.Logger, identity *user.Identity, err error) {
	if err == nil {
		respondJSON(w, ValidateResponse{Valid: true, User: identity}, http.StatusOK)
		return
	}

	switch {
	case errors.Is(err, ErrMissingToken):
		logger.Warn("token check failed: token missing")
		respondJSON(w, ValidateResponse{Valid: false, Message: msgMissingToken}, http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidToken):
		logger.Warn("token check failed: unknown token")
		respondJSON(w, ValidateResponse{Valid: false, Message: msgInvalidToken}, http.StatusUnauthorized)
	default:
		logger.Error("token check failed", "error", err.Error())
		respondError(w, msgInternal, httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

// allow applies the per-IP window for purpose. Limiter failures let the
// request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, logger *logging.Logger, purpose string) bool {
	if h.rateLimiter == nil {
		return true
	}

	ip := getClientIP(r)
	ok, err := h.rateLimiter.Allow(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
		return true
	}
	if !ok {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		respondError(w, msgTooManyRequests, httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}
	return true
}

// respondServiceError translates a service error into its HTTP response.
func (h *Handler) respondServiceError(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	kind := KindOf(err)
	if kind == KindInternal {
		logger.Error(op+" failed", "error", err.Error())
		respondError(w, msgInternal, httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Warn(op+" failed", "reason", kind.String(), "error", err.Error())

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, msgInvalidField+verr.Field, httputil.CodeValidationFailed, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidCredentials):
		respondError(w, msgBadCredentials, httputil.CodeInvalidCredentials, http.StatusUnauthorized)
	case errors.Is(err, ErrMissingToken):
		respondError(w, msgMissingToken, httputil.CodeMissingAuth, http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidToken):
		respondError(w, msgInvalidToken, httputil.CodeInvalidToken, http.StatusUnauthorized)
	case errors.Is(err, ErrEmailNotVerified):
		respondError(w, msgNotVerified, httputil.CodeEmailNotVerified, http.StatusForbidden)
	case errors.Is(err, ErrEmailTaken):
		respondError(w, msgEmailTaken, httputil.CodeEmailAlreadyExists, http.StatusBadRequest)
	case errors.Is(err, ErrUsernameTaken):
		respondError(w, msgUsernameTaken, httputil.CodeUsernameTaken, http.StatusBadRequest)
	case errors.Is(err, ErrAlreadyVerified):
		respondError(w, msgAlreadyVerified, httputil.CodeAlreadyVerified, http.StatusBadRequest)
	case errors.Is(err, ErrUserNotFound):
		respondError(w, msgUserNotFound, httputil.CodeUserNotFound, http.StatusNotFound)
	case errors.Is(err, ErrBadCode):
		respondError(w, msgBadCode, httputil.CodeInvalidCode, http.StatusBadRequest)
	case errors.Is(err, ErrCodeExpired):
		respondError(w, msgCodeExpired, httputil.CodeCodeExpired, http.StatusBadRequest)
	case errors.Is(err, ErrTooManyAttempts):
		respondError(w, msgTooManyAttempts, httputil.CodeTooManyAttempts, http.StatusTooManyRequests)
	default:
		respondError(w, msgInternal, httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP returns the host part of RemoteAddr. Forwarding headers are not
// read here; middleware.RealIP rewrites RemoteAddr upstream.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
