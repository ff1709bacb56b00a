package onec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/iudanet/clinicauth/internal/server/gateway"
)

const (
	testUser     = "Test"
	testPassword = "12345678"
)

// fakeOnec имитирует HTTP сервисы 1С
type fakeOnec struct {
	authUser     func(w http.ResponseWriter, r *http.Request)
	patients     func(w http.ResponseWriter, r *http.Request)
	token        string
	tokenCalls   atomic.Int32
	authCalls    atomic.Int32
	basicRetries atomic.Int32
}

func newFakeOnec(t *testing.T) *fakeOnec {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	return &fakeOnec{token: token}
}

func (f *fakeOnec) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case pathToken:
		user, pass, ok := r.BasicAuth()
		if !ok || user != testUser || pass != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.tokenCalls.Add(1)
		_, _ = fmt.Fprintf(w, `{"error":"success","code":"0","details":%q}`, f.token)
	case pathAuthUser:
		f.authCalls.Add(1)
		if _, _, ok := r.BasicAuth(); ok {
			f.basicRetries.Add(1)
		}
		f.authUser(w, r)
	case pathPatients:
		if f.patients == nil {
			http.NotFound(w, r)
			return
		}
		f.patients(w, r)
	default:
		http.NotFound(w, r)
	}
}

// observerStub запоминает результаты запросов
type observerStub struct {
	calls map[string]int
	mu    sync.Mutex
}

func (o *observerStub) ObserveGatewayRequest(operation, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[operation+":"+outcome]++
}

func newTestClient(t *testing.T, handler http.Handler, observer gateway.Observer) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(Config{
		BaseURL:  server.URL + "/",
		User:     testUser,
		Password: testPassword,
		Timeout:  5 * time.Second,
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), observer)
}

func requireBearer(t *testing.T, f *fakeOnec, r *http.Request) {
	assert.Equal(t, "Bearer "+f.token, r.Header.Get("Authorization"))
}

func TestClient_FetchProfile_MergesPatientCard(t *testing.T) {
	fake := newFakeOnec(t)
	fake.authUser = func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, fake, r)
		assert.Equal(t, "9161234567", r.URL.Query().Get("phone"))
		assert.Equal(t, "456", r.URL.Query().Get("docNum"))
		_, _ = io.WriteString(w, `{"error":"success","code":"0","details":[
			{"Code":"000123","Last_Name":"Иванов","First_Name":"Иван","Birth_Date":"1990-01-01","Email":"old@example.com"}
		]}`)
	}
	fake.patients = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "000123", r.URL.Query().Get("id"))
		_, _ = io.WriteString(w, `{"error":"success","code":0,"details":[
			{"id":123,"full_name":"Иванов Иван Иванович","medcard_number":"MK-1","gender":"М","email":""}
		]}`)
	}

	observer := &observerStub{}
	client := newTestClient(t, fake, observer)

	profile, err := client.FetchProfile(context.Background(), "+7 (916) 123-45-67", "456")
	require.NoError(t, err)

	assert.Equal(t, "123", *profile.Code, "patient card wins")
	assert.Equal(t, "Иванов Иван Иванович", *profile.FullName)
	assert.Equal(t, "1990-01-01", *profile.BirthDate)
	assert.Equal(t, "MK-1", *profile.MedcardNumber)
	assert.Equal(t, "М", *profile.Gender)
	assert.Equal(t, "old@example.com", *profile.Email, "empty patient value keeps summary")

	assert.Equal(t, 1, observer.calls["auth_user:success"])
	assert.Equal(t, 1, observer.calls["patients:success"])
	assert.Equal(t, 1, observer.calls["get_token:success"])
}

func TestClient_FetchProfile_TokenReused(t *testing.T) {
	fake := newFakeOnec(t)
	fake.authUser = func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, fake, r)
		_, _ = io.WriteString(w, `{"error":"success","code":"0","details":[{"full_name":"Петров Петр"}]}`)
	}

	client := newTestClient(t, fake, nil)

	for i := 0; i < 3; i++ {
		profile, err := client.FetchProfile(context.Background(), "9161234567", "")
		require.NoError(t, err)
		assert.Equal(t, "Петров Петр", *profile.FullName)
		assert.Nil(t, profile.Code)
	}

	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestClient_FetchProfile_NotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "code 2", body: `{"error":"not found","code":"2","details":null}`},
		{name: "empty list", body: `{"error":"success","code":"0","details":[]}`},
		{name: "null details", body: `{"error":"success","code":"0","details":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeOnec(t)
			fake.authUser = func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}
			observer := &observerStub{}
			client := newTestClient(t, fake, observer)

			_, err := client.FetchProfile(context.Background(), "9161234567", "456")
			assert.ErrorIs(t, err, gateway.ErrProfileNotFound)
		})
	}
}

func TestClient_FetchProfile_UpstreamErrors(t *testing.T) {
	tests := []struct {
		handler func(w http.ResponseWriter, r *http.Request)
		name    string
	}{
		{
			name: "logical error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"error":"internal","code":"5","details":null}`)
			},
		},
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "database is down", http.StatusInternalServerError)
			},
		},
		{
			name: "broken json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"error":`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeOnec(t)
			fake.authUser = tt.handler
			observer := &observerStub{}
			client := newTestClient(t, fake, observer)

			_, err := client.FetchProfile(context.Background(), "9161234567", "")
			require.Error(t, err)
			assert.NotErrorIs(t, err, gateway.ErrProfileNotFound)
			assert.Equal(t, 1, observer.calls["auth_user:error"])
			assert.Equal(t, int32(0), fake.basicRetries.Load())
		})
	}
}

func TestClient_FetchProfile_RetriesWithBasicOnTokenRejection(t *testing.T) {
	fake := newFakeOnec(t)
	fake.authUser = func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); ok {
			_, _ = io.WriteString(w, `{"error":"success","code":"0","details":[{"full_name":"Сидоров"}]}`)
			return
		}
		http.Error(w, "Invalid token", http.StatusUnauthorized)
	}

	client := newTestClient(t, fake, nil)

	profile, err := client.FetchProfile(context.Background(), "9161234567", "")
	require.NoError(t, err)
	assert.Equal(t, "Сидоров", *profile.FullName)
	assert.Equal(t, int32(2), fake.authCalls.Load())
	assert.Equal(t, int32(1), fake.basicRetries.Load())

	// токен сброшен, следующий запрос получит новый
	_, err = client.FetchProfile(context.Background(), "9161234567", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestClient_FetchProfile_Windows1251Body(t *testing.T) {
	fake := newFakeOnec(t)
	fake.authUser = func(w http.ResponseWriter, r *http.Request) {
		body, err := charmap.Windows1251.NewEncoder().String(
			`{"error":"success","code":"0","details":[{"full_name":"Кузнецова Анна"}]}`)
		require.NoError(t, err)
		_, _ = io.WriteString(w, body)
	}

	client := newTestClient(t, fake, nil)

	profile, err := client.FetchProfile(context.Background(), "9161234567", "")
	require.NoError(t, err)
	assert.Equal(t, "Кузнецова Анна", *profile.FullName)
}

func TestClient_FetchProfile_PatientCardFailureIgnored(t *testing.T) {
	fake := newFakeOnec(t)
	fake.authUser = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"success","code":"0","details":[{"code":"77","full_name":"Орлов"}]}`)
	}
	fake.patients = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}

	observer := &observerStub{}
	client := newTestClient(t, fake, observer)

	profile, err := client.FetchProfile(context.Background(), "9161234567", "")
	require.NoError(t, err)
	assert.Equal(t, "77", *profile.Code)
	assert.Equal(t, "Орлов", *profile.FullName)
	assert.Equal(t, 1, observer.calls["patients:error"])
}

func TestClient_FetchProfile_InvalidPhone(t *testing.T) {
	fake := newFakeOnec(t)
	client := newTestClient(t, fake, nil)

	_, err := client.FetchProfile(context.Background(), "12345", "")
	assert.Error(t, err)
	assert.Equal(t, int32(0), fake.authCalls.Load())
}

func TestClient_TokenRequestRejected(t *testing.T) {
	fake := newFakeOnec(t)
	fake.authUser = func(w http.ResponseWriter, r *http.Request) {
		t.Error("auth_user must not be called without token")
	}

	server := httptest.NewServer(fake)
	defer server.Close()

	client := New(Config{BaseURL: server.URL, User: "wrong", Password: "wrong"}, nil, nil, nil)

	_, err := client.FetchProfile(context.Background(), "9161234567", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, gateway.ErrProfileNotFound)
}
