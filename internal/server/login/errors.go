package login

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind категория ошибки сценария входа
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindState
	KindUnauthorized
	KindNotFound
	KindConflict
	KindExpired
	KindExhausted
	KindUpstream
)

// HTTPStatus код ответа для категории
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindState:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindExhausted:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindExhausted:
		return "exhausted"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error ошибка, показываемая пациенту.
// Message короткое сообщение на русском, Err внутренняя причина (только для логов).
type Error struct {
	Err          error
	AttemptsLeft *int
	Message      string
	RetryAfter   time.Duration
	Kind         Kind
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// AsError извлекает *Error из цепочки. Для прочих ошибок возвращает KindInternal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindInternal, msgInternal, err)
}

// Сообщения пациенту
const (
	msgInternal          = "Внутренняя ошибка сервера"
	msgPhoneRequired     = "Введите номер телефона"
	msgPhoneIncomplete   = "Введите номер телефона полностью"
	msgPhoneInvalid      = "Некорректный номер телефона"
	msgPhoneMissing      = "Не передан номер телефона"
	msgSessionIDRequired = "Отсутствует идентификатор сессии"
	msgSessionNotFound   = "Сессия не найдена"
	msgSessionExpired    = "Сессия устарела, начните заново"
	msgDocRequired       = "Укажите последние цифры документа"
	msgDocDigits         = "Введите последние 3 цифры документа"
	msgDocVerified       = "Документ уже подтверждён"
	msgDocMismatch       = "Данные документа не совпадают с картой в 1С"
	msgDocFirst          = "Сначала подтвердите документ"
	msgProfileNotFound   = "Карта в 1С не найдена. Проверьте номер телефона"
	msgUpstream          = "1С временно недоступна, попробуйте позже"
	msgCodeRequired      = "Введите код из SMS"
	msgCodeNotIssued     = "Код ещё не был запрошен"
	msgCodeExpired       = "Код истёк, запросите новый"
	msgCodeExhausted     = "Превышено количество попыток. Запросите новый код"
	msgCodeBlocked       = "Код заблокирован. Запросите новый"
	msgCodeWrong         = "Неверный код. Осталось попыток: %d"
	msgCodeStale         = "Код устарел, введите последний полученный код"
	msgCodeVerified      = "Код уже подтверждён"
	msgResendCooldown    = "Повторно запросить код можно через %d сек."
	msgBothRequired      = "Подтвердите документ и код из SMS"
	msgPasswordShort     = "Пароль должен содержать не менее %d символов"
	msgPasswordLong      = "Пароль слишком длинный"
	msgCredsRequired     = "Укажите телефон и пароль"
	msgBadCredentials    = "Неверные данные для входа"
	msgRegisterRequired  = "Укажите телефон, пароль и последние 3 цифры документа"
	msgUserExists        = "Пользователь с таким телефоном уже зарегистрирован"
)
