package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/iudanet/clinicauth/internal/models"
	"github.com/iudanet/clinicauth/internal/server/login"
	"github.com/iudanet/clinicauth/pkg/api"
)

const msgInvalidBody = "Некорректное тело запроса"

// LoginService сценарии входа и регистрации
type LoginService interface {
	Start(ctx context.Context, phone string) (*login.StartResult, error)
	VerifyDocument(ctx context.Context, sessionID, docDigits string) (*login.OTPResult, error)
	ResendOTP(ctx context.Context, sessionID string) (*login.OTPResult, error)
	VerifyOTP(ctx context.Context, sessionID, code string) error
	SetPassword(ctx context.Context, sessionID, password string) (*models.User, error)
	PasswordLogin(ctx context.Context, phone, password string) (*models.User, error)
	Register(ctx context.Context, req login.RegisterRequest) (*models.User, error)
	CheckPhone(ctx context.Context, phone string) (bool, error)
}

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger  *slog.Logger
	service LoginService
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, service LoginService) *AuthHandler {
	return &AuthHandler{
		logger:  logger,
		service: service,
	}
}

// Routes регистрирует маршруты авторизации
func (h *AuthHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/login/start", h.Start)
	mux.HandleFunc("POST /api/auth/login/verify-doc", h.VerifyDoc)
	mux.HandleFunc("POST /api/auth/login/resend-otp", h.ResendOTP)
	mux.HandleFunc("POST /api/auth/login/verify-otp", h.VerifyOTP)
	mux.HandleFunc("POST /api/auth/login/set-password", h.SetPassword)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/check-phone", h.CheckPhone)
}

// Start обрабатывает POST /api/auth/login/start
func (h *AuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Start(r.Context(), req.Phone)
	if err != nil {
		h.sendServiceError(r.Context(), w, err)
		return
	}

	resp := api.StartResponse{
		Success:          true,
		HasLocalPassword: res.HasLocalPassword,
		DisplayName:      res.DisplayName,
	}
	if res.SessionID != "" {
		resp.SessionID = &res.SessionID
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// VerifyDoc обрабатывает POST /api/auth/login/verify-doc
func (h *AuthHandler) VerifyDoc(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyDocRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.VerifyDocument(r.Context(), req.SessionID, req.DocDigits)
	if err != nil {
		h.sendServiceError(r.Context(), w, err)
		return
	}

	h.sendJSON(w, otpResponse(res), http.StatusOK)
}

// ResendOTP обрабатывает POST /api/auth/login/resend-otp
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req api.ResendOTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.ResendOTP(r.Context(), req.SessionID)
	if err != nil {
		h.sendServiceError(r.Context(), w, err)
		return
	}

	h.sendJSON(w, otpResponse(res), http.StatusOK)
}

// VerifyOTP обрабатывает POST /api/auth/login/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.VerifyOTP(r.Context(), req.SessionID, req.Code); err != nil {
		h.sendServiceError(r.Context(), w, err)
		return
	}

	h.sendJSON(w, api.SuccessResponse{Success: true}, http.StatusOK)
}

// SetPassword обрабатывает POST /api/auth/login/set-password
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.SetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.SetPassword(r.Context(), req.SessionID, req.Password)
	if err != nil {
		h.sendServiceError(r.Context(), w, err)
		return
	}

	h.sendJSON(w, api.UserResponse{Success: true, User: toAPIUser(user)}, http.StatusOK)
}

// Login обрабатывает POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.PasswordLogin(r.Context(), req.Phone, req.Password)
	if err != nil {
		h.sendServiceError(r.Context(), w, err)
		return
	}

	h.sendJSON(w, api.UserResponse{Success: true, User: toAPIUser(user)}, http.StatusOK)
}

// Register обрабатывает POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), login.RegisterRequest{
		Phone:              req.Phone,
		Password:           req.Password,
		PassportLastDigits: req.PassportLastDigits,
		FullName:           req.FullName,
		BirthDate:          req.BirthDate,
		Email:              req.Email,
	})
	if err != nil {
		h.sendServiceError(r.Context(), w, err)
		return
	}

	h.sendJSON(w, api.UserResponse{Success: true, User: toAPIUser(user)}, http.StatusOK)
}

// CheckPhone обрабатывает POST /api/auth/check-phone
func (h *AuthHandler) CheckPhone(w http.ResponseWriter, r *http.Request) {
	var req api.CheckPhoneRequest
	if !h.decode(w, r, &req) {
		return
	}

	exists, err := h.service.CheckPhone(r.Context(), req.Phone)
	if err != nil {
		h.sendServiceError(r.Context(), w, err)
		return
	}

	h.sendJSON(w, api.CheckPhoneResponse{Exists: exists}, http.StatusOK)
}

// decode разбирает JSON тело; при ошибке отвечает 400
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		h.sendJSON(w, api.ErrorResponse{Error: msgInvalidBody}, http.StatusBadRequest)
		return false
	}
	return true
}

// sendServiceError переводит ошибку сценария в HTTP ответ.
// Внутренняя причина пишется только в лог.
func (h *AuthHandler) sendServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	e := login.AsError(err)
	status := e.Kind.HTTPStatus()

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "login request failed",
		slog.String("kind", e.Kind.String()),
		slog.Int("status", status),
		slog.Any("error", err))

	resp := api.ErrorResponse{Error: e.Message, AttemptsLeft: e.AttemptsLeft}
	if e.RetryAfter > 0 {
		seconds := int(math.Ceil(e.RetryAfter.Seconds()))
		resp.RetryAfter = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	h.sendJSON(w, resp, status)
}

// sendJSON отправляет JSON ответ
func (h *AuthHandler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func otpResponse(res *login.OTPResult) api.OTPResponse {
	return api.OTPResponse{
		Success:      true,
		OTPExpiresAt: res.ExpiresAt,
		DebugCode:    res.DebugCode,
	}
}

func toAPIUser(u *models.User) api.User {
	return api.User{
		ID:                u.ID,
		Phone:             u.Phone,
		FullName:          u.FullName,
		BirthDate:         u.BirthDate,
		Email:             u.Email,
		PassportSeries:    u.PassportSeries,
		PassportNumber:    u.PassportNumber,
		PassportIssueDate: u.PassportIssueDate,
		PassportIssuedBy:  u.PassportIssuedBy,
		OnecID:            u.OnecID,
		MedcardNumber:     u.MedcardNumber,
		Gender:            u.Gender,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}
