// Package login drives the patient login and registration flows:
// direct password login, plain registration and the multi-step session
// (phone, document digits, SMS code, password).
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/iudanet/clinicauth/internal/crypto"
	"github.com/iudanet/clinicauth/internal/models"
	"github.com/iudanet/clinicauth/internal/server/gateway"
	"github.com/iudanet/clinicauth/internal/server/otp"
	"github.com/iudanet/clinicauth/internal/server/storage"
	"github.com/iudanet/clinicauth/internal/validation"
)

// DefaultSessionTTL время жизни сессии входа
const DefaultSessionTTL = 15 * time.Minute

// Шаги для метрик
const (
	StepStart       = "start"
	StepVerifyDoc   = "verify_doc"
	StepResendOTP   = "resend_otp"
	StepVerifyOTP   = "verify_otp"
	StepSetPassword = "set_password"
	StepLogin       = "login"
	StepRegister    = "register"
	StepCheckPhone  = "check_phone"
)

// Recorder учитывает результаты шагов
type Recorder interface {
	ObserveLoginStep(step, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLoginStep(string, string) {}

// Config параметры сценария входа
type Config struct {
	SessionTTL time.Duration
	// ExpiredRetention сколько истекшая сессия хранится до удаления,
	// чтобы шаги входа отвечали "сессия устарела", а не "не найдена"
	ExpiredRetention time.Duration
	MinPasswordLen   int
	// Production отключает возврат кода в ответе
	Production bool
}

// StartResult результат первого шага
type StartResult struct {
	DisplayName      *string
	SessionID        string
	HasLocalPassword bool
}

// OTPResult результат выпуска кода
type OTPResult struct {
	ExpiresAt time.Time
	DebugCode string // пусто в production
}

// RegisterRequest данные простой регистрации
type RegisterRequest struct {
	FullName           *string
	BirthDate          *string
	Email              *string
	Phone              string
	Password           string
	PassportLastDigits string
}

// Service оркестратор сценариев входа
type Service struct {
	users    storage.UserStorage
	sessions storage.SessionStorage
	gateway  gateway.ProfileGateway
	issuer   *otp.Issuer
	hasher   *crypto.Hasher
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	cfg      Config
}

// NewService создает сервис входа
func NewService(
	users storage.UserStorage,
	sessions storage.SessionStorage,
	gw gateway.ProfileGateway,
	issuer *otp.Issuer,
	hasher *crypto.Hasher,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.ExpiredRetention <= 0 {
		cfg.ExpiredRetention = cfg.SessionTTL
	}
	if cfg.MinPasswordLen <= 0 {
		cfg.MinPasswordLen = validation.MinPasswordLen
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		users:    users,
		sessions: sessions,
		gateway:  gw,
		issuer:   issuer,
		hasher:   hasher,
		logger:   logger,
		recorder: nopRecorder{},
		now:      time.Now,
		cfg:      cfg,
	}
}

// SetRecorder подключает учет метрик
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

// SetClock подменяет источник времени сервиса и выпуска кодов
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.issuer.SetClock(now)
}

// observe учитывает результат шага; вызывается через defer с указателем на ошибку
func (s *Service) observe(step string, errp *error) {
	outcome := "success"
	if *errp != nil {
		outcome = AsError(*errp).Kind.String()
	}
	s.recorder.ObserveLoginStep(step, outcome)
}

// Start нормализует телефон; для известного пользователя сообщает о наличии пароля,
// иначе ищет пациента в ERP и создает сессию входа
func (s *Service) Start(ctx context.Context, phone string) (_ *StartResult, err error) {
	defer s.observe(StepStart, &err)

	if strings.TrimSpace(phone) == "" {
		return nil, newError(KindValidation, msgPhoneRequired, nil)
	}

	normalized, err := validation.NormalizePhone(phone)
	if err != nil {
		return nil, newError(KindValidation, msgPhoneIncomplete, err)
	}

	user, err := s.users.GetUserByPhone(ctx, normalized)
	switch {
	case err == nil:
		return &StartResult{HasLocalPassword: true, DisplayName: user.FullName}, nil
	case !errors.Is(err, storage.ErrUserNotFound):
		return nil, newError(KindInternal, "Не удалось проверить аккаунт", err)
	}

	profile, err := s.gateway.FetchProfile(ctx, normalized, "")
	if err != nil {
		if errors.Is(err, gateway.ErrProfileNotFound) {
			return nil, newError(KindNotFound, msgProfileNotFound, err)
		}
		return nil, newError(KindUpstream, msgUpstream, err)
	}

	now := s.now()
	session, err := s.sessions.CreateSession(ctx, storage.NewSession{
		Phone:     normalized,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		Remote:    *profile,
	})
	if err != nil {
		return nil, newError(KindInternal, "Не удалось подготовить вход", err)
	}

	s.logger.InfoContext(ctx, "login session created",
		slog.String("session_id", session.SessionID),
		slog.String("phone", validation.MaskPhone(normalized)))

	return &StartResult{SessionID: session.SessionID, DisplayName: profile.FullName}, nil
}

// VerifyDocument сверяет последние цифры документа с ERP и выпускает код
func (s *Service) VerifyDocument(ctx context.Context, sessionID, docDigits string) (_ *OTPResult, err error) {
	defer s.observe(StepVerifyDoc, &err)

	if sessionID == "" {
		return nil, newError(KindValidation, msgSessionIDRequired, nil)
	}
	if strings.TrimSpace(docDigits) == "" {
		return nil, newError(KindValidation, msgDocRequired, nil)
	}

	digits, err := validation.DocLastDigits(docDigits)
	if err != nil {
		return nil, newError(KindValidation, msgDocDigits, err)
	}

	session, err := s.loadSession(ctx, sessionID, "Не удалось проверить данные")
	if err != nil {
		return nil, err
	}

	if session.DocVerified() {
		return nil, newError(KindConflict, msgDocVerified, nil)
	}

	profile, err := s.gateway.FetchProfile(ctx, session.Phone, digits)
	if err != nil {
		if errors.Is(err, gateway.ErrProfileNotFound) {
			return nil, newError(KindValidation, msgDocMismatch, err)
		}
		return nil, newError(KindUpstream, msgUpstream, err)
	}

	err = s.sessions.RecordDocVerification(ctx, sessionID, digits, *profile)
	switch {
	case errors.Is(err, storage.ErrSessionStateConflict):
		return nil, newError(KindConflict, msgDocVerified, err)
	case errors.Is(err, storage.ErrSessionNotFound):
		return nil, newError(KindNotFound, msgSessionNotFound, err)
	case err != nil:
		return nil, newError(KindInternal, "Не удалось сохранить подтверждение документа", err)
	}

	return s.issue(ctx, session, "Не удалось отправить код подтверждения")
}

// ResendOTP выпускает новый код; предыдущий перестает действовать
func (s *Service) ResendOTP(ctx context.Context, sessionID string) (_ *OTPResult, err error) {
	defer s.observe(StepResendOTP, &err)

	session, err := s.loadSession(ctx, sessionID, "Не удалось отправить код")
	if err != nil {
		return nil, err
	}

	if !session.DocVerified() {
		return nil, newError(KindState, msgDocFirst, nil)
	}

	var cooldown *otp.CooldownError
	if err := s.issuer.CheckResend(session); errors.As(err, &cooldown) {
		seconds := int(math.Ceil(cooldown.RetryAfter.Seconds()))
		e := newError(KindExhausted, fmt.Sprintf(msgResendCooldown, seconds), err)
		e.RetryAfter = cooldown.RetryAfter
		return nil, e
	}

	return s.issue(ctx, session, "Не удалось отправить код")
}

func (s *Service) issue(ctx context.Context, session *models.LoginSession, failMsg string) (*OTPResult, error) {
	issued, err := s.issuer.Issue(ctx, session)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, newError(KindNotFound, msgSessionNotFound, err)
		}
		return nil, newError(KindInternal, failMsg, err)
	}

	result := &OTPResult{ExpiresAt: issued.ExpiresAt}
	if !s.cfg.Production {
		result.DebugCode = issued.Code
	}
	return result, nil
}

// VerifyOTP проверяет код из SMS
func (s *Service) VerifyOTP(ctx context.Context, sessionID, code string) (err error) {
	defer s.observe(StepVerifyOTP, &err)

	if sessionID == "" {
		return newError(KindValidation, msgSessionIDRequired, nil)
	}
	if strings.TrimSpace(code) == "" {
		return newError(KindValidation, msgCodeRequired, nil)
	}

	session, err := s.loadSession(ctx, sessionID, "Не удалось проверить код")
	if err != nil {
		return err
	}

	switch session.State.(type) {
	case models.DocPending:
		return newError(KindState, msgDocFirst, nil)
	case models.PasswordPending:
		return newError(KindConflict, msgCodeVerified, nil)
	}

	err = s.issuer.Verify(ctx, session, code)
	if err == nil {
		return nil
	}

	var mismatch *otp.MismatchError
	switch {
	case errors.As(err, &mismatch):
		left := mismatch.AttemptsLeft
		if left > 0 {
			e := newError(KindValidation, fmt.Sprintf(msgCodeWrong, left), err)
			e.AttemptsLeft = &left
			return e
		}
		e := newError(KindExhausted, msgCodeBlocked, err)
		e.AttemptsLeft = &left
		return e
	case errors.Is(err, otp.ErrBlocked):
		left := 0
		e := newError(KindExhausted, msgCodeExhausted, err)
		e.AttemptsLeft = &left
		return e
	case errors.Is(err, otp.ErrNoChallenge):
		return newError(KindState, msgCodeNotIssued, err)
	case errors.Is(err, otp.ErrExpired):
		return newError(KindExpired, msgCodeExpired, err)
	case errors.Is(err, otp.ErrStale):
		return newError(KindValidation, msgCodeStale, err)
	case errors.Is(err, storage.ErrSessionStateConflict):
		return newError(KindConflict, msgCodeVerified, err)
	case errors.Is(err, storage.ErrSessionNotFound):
		return newError(KindNotFound, msgSessionNotFound, err)
	default:
		return newError(KindInternal, "Не удалось проверить код", err)
	}
}

func (s *Service) checkPassword(password string) error {
	err := validation.ValidatePassword(password, s.cfg.MinPasswordLen)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, validation.ErrPasswordTooLong):
		return newError(KindValidation, msgPasswordLong, err)
	default:
		return newError(KindValidation, fmt.Sprintf(msgPasswordShort, s.cfg.MinPasswordLen), err)
	}
}

// SetPassword завершает сессию: сохраняет пароль и профиль пациента, удаляет сессию
func (s *Service) SetPassword(ctx context.Context, sessionID, password string) (_ *models.User, err error) {
	defer s.observe(StepSetPassword, &err)

	if sessionID == "" {
		return nil, newError(KindValidation, msgSessionIDRequired, nil)
	}
	if err := s.checkPassword(password); err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, sessionID, "Не удалось завершить настройку пароля")
	if err != nil {
		return nil, err
	}

	state, ok := session.State.(models.PasswordPending)
	if !ok {
		return nil, newError(KindState, msgBothRequired, nil)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, newError(KindInternal, "Не удалось сохранить пароль", err)
	}

	profile := models.UserProfile{
		Phone:          session.Phone,
		PasswordHash:   hash,
		PassportNumber: models.StringPtr(state.DocLastDigits),
	}
	profile.MergeRemote(&session.Remote)
	s.refreshProfile(ctx, &profile, state.DocLastDigits)

	if _, err := s.users.UpsertUser(ctx, profile, storage.UpsertPolicy{OnConflict: storage.ConflictMerge}); err != nil {
		return nil, newError(KindInternal, "Не удалось сохранить пароль", err)
	}

	user, err := s.users.GetUserByPhone(ctx, session.Phone)
	if err != nil {
		return nil, newError(KindInternal, "Не удалось завершить настройку пароля", err)
	}

	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		s.logger.WarnContext(ctx, "failed to delete login session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "password set",
		slog.Int64("user_id", user.ID),
		slog.String("phone", validation.MaskPhone(user.Phone)))

	return user, nil
}

// PasswordLogin входит по телефону и паролю, попутно обновляя профиль из ERP
func (s *Service) PasswordLogin(ctx context.Context, phone, password string) (_ *models.User, err error) {
	defer s.observe(StepLogin, &err)

	if strings.TrimSpace(phone) == "" || password == "" {
		return nil, newError(KindValidation, msgCredsRequired, nil)
	}

	normalized, err := validation.NormalizePhone(phone)
	if err != nil {
		return nil, newError(KindUnauthorized, msgPhoneIncomplete, err)
	}

	user, err := s.users.GetUserByPhone(ctx, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, newError(KindUnauthorized, msgBadCredentials, err)
		}
		return nil, newError(KindInternal, "Не удалось выполнить поиск пользователя", err)
	}

	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, crypto.ErrMismatch) {
			return nil, newError(KindUnauthorized, msgBadCredentials, err)
		}
		return nil, newError(KindInternal, "Не удалось проверить пароль", err)
	}

	docDigits := ""
	if user.PassportNumber != nil {
		docDigits = *user.PassportNumber
	}

	profile := models.ProfileFromUser(user)
	if !s.refreshProfile(ctx, &profile, docDigits) {
		return user, nil
	}

	updated, err := s.users.UpsertUser(ctx, profile, storage.UpsertPolicy{OnConflict: storage.ConflictMerge})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to persist refreshed profile",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()))
		return user, nil
	}

	return updated, nil
}

// refreshProfile дополняет профиль свежими данными ERP. Ошибки только логируются.
// Возвращает true, если данные были получены.
func (s *Service) refreshProfile(ctx context.Context, profile *models.UserProfile, docDigits string) bool {
	remote, err := s.gateway.FetchProfile(ctx, profile.Phone, docDigits)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, gateway.ErrProfileNotFound) {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "profile refresh skipped",
			slog.String("phone", validation.MaskPhone(profile.Phone)),
			slog.String("error", err.Error()))
		return false
	}

	profile.MergeRemote(remote)
	return true
}

// Register создает пользователя без сессии входа
func (s *Service) Register(ctx context.Context, req RegisterRequest) (_ *models.User, err error) {
	defer s.observe(StepRegister, &err)

	if strings.TrimSpace(req.Phone) == "" || req.Password == "" || strings.TrimSpace(req.PassportLastDigits) == "" {
		return nil, newError(KindValidation, msgRegisterRequired, nil)
	}

	digits, err := validation.DocLastDigits(req.PassportLastDigits)
	if err != nil {
		return nil, newError(KindValidation, msgDocDigits, err)
	}

	phone, err := validation.NormalizePhone(req.Phone)
	if err != nil {
		return nil, newError(KindValidation, msgPhoneInvalid, err)
	}

	if err := s.checkPassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, newError(KindInternal, "Не удалось создать пользователя", err)
	}

	user, err := s.users.UpsertUser(ctx, models.UserProfile{
		Phone:          phone,
		PasswordHash:   hash,
		FullName:       trimmed(req.FullName),
		BirthDate:      trimmed(req.BirthDate),
		Email:          trimmed(req.Email),
		PassportNumber: models.StringPtr(digits),
	}, storage.UpsertPolicy{OnConflict: storage.ConflictFail})
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			return nil, newError(KindConflict, msgUserExists, err)
		}
		return nil, newError(KindInternal, "Не удалось создать пользователя", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.Int64("user_id", user.ID),
		slog.String("phone", validation.MaskPhone(phone)))

	return user, nil
}

// CheckPhone сообщает, зарегистрирован ли телефон
func (s *Service) CheckPhone(ctx context.Context, phone string) (_ bool, err error) {
	defer s.observe(StepCheckPhone, &err)

	if strings.TrimSpace(phone) == "" {
		return false, newError(KindValidation, msgPhoneMissing, nil)
	}

	normalized, err := validation.NormalizePhone(phone)
	if err != nil {
		return false, newError(KindValidation, msgPhoneInvalid, err)
	}

	_, err = s.users.GetUserByPhone(ctx, normalized)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrUserNotFound):
		return false, nil
	default:
		return false, newError(KindInternal, "Не удалось проверить номер", err)
	}
}

// loadSession читает сессию и проверяет срок ее действия
func (s *Service) loadSession(ctx context.Context, sessionID, failMsg string) (*models.LoginSession, error) {
	if sessionID == "" {
		return nil, newError(KindValidation, msgSessionIDRequired, nil)
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, newError(KindNotFound, msgSessionNotFound, err)
		}
		return nil, newError(KindInternal, failMsg, err)
	}

	if session.Expired(s.now()) {
		return nil, newError(KindExpired, msgSessionExpired, nil)
	}

	return session, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	return models.StringPtr(strings.TrimSpace(*v))
}
