package onec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/iudanet/clinicauth/internal/models"
	"github.com/iudanet/clinicauth/internal/server/gateway"
)

// codeNotFound код ответа 1С "пользователь не найден"
const codeNotFound = "2"

// RequestError ответ 1С с кодом статуса вне 2xx
type RequestError struct {
	Operation string
	Body      string
	Status    int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("onec %s: status %d: %s", e.Operation, e.Status, e.Body)
}

// mentionsToken сервер отклонил bearer токен
func (e *RequestError) mentionsToken() bool {
	body := strings.ToLower(e.Body)
	return strings.Contains(body, "параметра 'iss'") ||
		strings.Contains(body, "token") ||
		strings.Contains(body, "токен")
}

// LogicalError ответ 1С с ненулевым кодом в конверте
type LogicalError struct {
	Operation string
	Status    string
	Code      string
}

func (e *LogicalError) Error() string {
	return fmt.Sprintf("onec %s: %s [%s]", e.Operation, e.Status, e.Code)
}

// flexString принимает как строку, так и число
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// envelope общий формат ответов 1С
type envelope struct {
	Error        flexString      `json:"error"`
	ErrorMessage flexString      `json:"error_message"`
	Code         flexString      `json:"code"`
	ErrorCode    flexString      `json:"error_code"`
	Details      json.RawMessage `json:"details"`
}

// decodeText возвращает тело как UTF-8, при необходимости перекодируя из Windows-1251
func decodeText(body []byte) ([]byte, error) {
	if utf8.Valid(body) {
		return body, nil
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cp1251 body: %w", err)
	}
	return decoded, nil
}

// parseEnvelope разбирает тело ответа и возвращает details успешного ответа
func parseEnvelope(operation string, body []byte) (json.RawMessage, error) {
	text, err := decodeText(body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(text, &env); err != nil {
		return nil, fmt.Errorf("failed to parse onec %s response: %w", operation, err)
	}

	status := firstNonEmpty(string(env.Error), string(env.ErrorMessage), "unknown")
	code := firstNonEmpty(string(env.Code), string(env.ErrorCode), "unknown")

	if status == "success" && code == "0" {
		return env.Details, nil
	}
	if code == codeNotFound {
		return nil, fmt.Errorf("onec %s: %w", operation, gateway.ErrProfileNotFound)
	}

	return nil, &LogicalError{Operation: operation, Status: status, Code: code}
}

// parseRecords разбирает details как список записей
func parseRecords(details json.RawMessage) ([]map[string]any, error) {
	if len(details) == 0 || bytes.Equal(details, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(details))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse onec records: %w", err)
	}
	return records, nil
}

// normalizeRecord приводит запись 1С к профилю. Ключи сравниваются без учета регистра.
func normalizeRecord(raw map[string]any) models.RemoteProfile {
	get := func(key string) string {
		for k, v := range raw {
			if strings.EqualFold(k, key) {
				return stringify(v)
			}
		}
		return ""
	}

	code := firstNonEmpty(get("code"), get("id"))

	fullName := get("full_name")
	if fullName == "" {
		var parts []string
		for _, key := range []string{"last_name", "first_name", "middle_name"} {
			if v := get(key); v != "" {
				parts = append(parts, v)
			}
		}
		fullName = strings.Join(parts, " ")
	}

	return models.RemoteProfile{
		Code:          models.StringPtr(code),
		FullName:      models.StringPtr(fullName),
		BirthDate:     models.StringPtr(get("birth_date")),
		Gender:        models.StringPtr(get("gender")),
		MedcardNumber: models.StringPtr(get("medcard_number")),
		Email:         models.StringPtr(get("email")),
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
