package router

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/userapi/internal/config"
	"github.com/patric-chuzhbe/userapi/internal/db/memorystorage"
	"github.com/patric-chuzhbe/userapi/internal/ipchecker"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/mockstorage"
	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/service"
)

const trustedSubnet = "10.0.0.0/8"

type initOption func(*initOptions)

type initOptions struct {
	mockStorage *mockstorage.StorageMock
}

func withMockStorage(db *mockstorage.StorageMock) initOption {
	return func(options *initOptions) {
		options.mockStorage = db
	}
}

func setupTestRouter(t *testing.T, optionsProto ...initOption) *httptest.Server {
	t.Helper()

	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	require.NoError(t, err)

	var svc *service.Service
	if options.mockStorage != nil {
		svc = service.New(options.mockStorage)
	} else {
		db, err := memorystorage.New()
		require.NoError(t, err)
		svc = service.New(db)
	}

	checker, err := ipchecker.New(trustedSubnet)
	require.NoError(t, err)

	require.NoError(t, logger.Init("debug"))

	server := httptest.NewServer(New(svc, checker, cfg.AllowedOrigins()))
	t.Cleanup(server.Close)

	return server
}

func TestUserScenario(t *testing.T) {
	server := setupTestRouter(t)
	client := resty.New().SetBaseURL(server.URL)

	var created models.User
	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(`{"username":"alice","email":"a@x.com"}`).
		SetResult(&created).
		Post("/api/users")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())
	assert.Positive(t, created.ID)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "a@x.com", created.Email)

	var failure models.ErrorResponse
	resp, err = client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(`{"username":"alice","email":"other@x.com"}`).
		SetError(&failure).
		Post("/api/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, "Username or email already exists", failure.Error)

	var users []models.User
	resp, err = client.R().SetResult(&users).Get("/api/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, []models.User{created}, users)

	resp, err = client.R().Delete("/api/users/" + strconv.FormatInt(created.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"message":"User deleted successfully"}`, resp.String())

	resp, err = client.R().Get("/api/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `[]`, resp.String())

	resp, err = client.R().Delete("/api/users/" + strconv.FormatInt(created.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.JSONEq(t, `{"error":"User not found"}`, resp.String())
}

func TestPostApiusers(t *testing.T) {
	server := setupTestRouter(t)

	tests := []struct {
		name         string
		body         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "missing email",
			body:         `{"username":"bob"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Username and email are required"}`,
		},
		{
			name:         "missing username",
			body:         `{"email":"b@x.com"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Username and email are required"}`,
		},
		{
			name:         "empty strings",
			body:         `{"username":"","email":""}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Username and email are required"}`,
		},
		{
			name:         "null body",
			body:         `null`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Username and email are required"}`,
		},
		{
			name:         "malformed JSON",
			body:         `{"username":`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Invalid request body"}`,
		},
		{
			name:         "wrong field type",
			body:         `{"username":42,"email":"b@x.com"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Invalid request body"}`,
		},
		{
			name:         "trailing data",
			body:         `{"username":"bob","email":"b@x.com"} garbage`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Invalid request body"}`,
		},
		{
			name:         "username too long",
			body:         `{"username":"` + strings.Repeat("u", 81) + `","email":"b@x.com"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Username must be at most 80 and email at most 120 characters"}`,
		},
		{
			name:         "email too long",
			body:         `{"username":"bob","email":"` + strings.Repeat("e", 115) + `@x.com"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Username must be at most 80 and email at most 120 characters"}`,
		},
		{
			name:         "valid",
			body:         `{"username":"bob","email":"b@x.com"}`,
			expectedCode: http.StatusCreated,
			expectedBody: `{"id":1,"username":"bob","email":"b@x.com"}`,
		},
		{
			name:         "duplicate email",
			body:         `{"username":"robert","email":"b@x.com"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Username or email already exists"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := resty.New().R().
				SetHeader("Content-Type", "application/json").
				SetBody(tt.body).
				Post(server.URL + "/api/users")
			require.NoError(t, err)

			assert.Equal(t, tt.expectedCode, resp.StatusCode())
			assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, resp.String())
		})
	}
}

func TestPostApiusersForGzip(t *testing.T) {
	server := setupTestRouter(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"username":"gzip","email":"g@x.com"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	request, err := http.NewRequest(http.MethodPost, server.URL+"/api/users", &buf)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Content-Encoding", "gzip")
	request.Header.Set("Accept-Encoding", "gzip")

	transport := &http.Transport{DisableCompression: true}
	response, err := (&http.Client{Transport: transport}).Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusCreated, response.StatusCode)
	assert.Equal(t, "gzip", response.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(response.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"username":"gzip","email":"g@x.com"}`, string(body))
}

func TestDeleteApiusersID(t *testing.T) {
	server := setupTestRouter(t)

	tests := []struct {
		name         string
		path         string
		expectedCode int
	}{
		{name: "unknown id", path: "/api/users/12345", expectedCode: http.StatusNotFound},
		{name: "zero id", path: "/api/users/0", expectedCode: http.StatusNotFound},
		{name: "not a number", path: "/api/users/abc", expectedCode: http.StatusNotFound},
		{name: "negative", path: "/api/users/-1", expectedCode: http.StatusNotFound},
		{name: "overflow", path: "/api/users/99999999999999999999", expectedCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := resty.New().R().Delete(server.URL + tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCode, resp.StatusCode())
		})
	}
}

func TestGetApihealth(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		server := setupTestRouter(t)

		resp, err := resty.New().R().Get(server.URL + "/api/health")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.JSONEq(t, `{"status":"healthy","database":"connected"}`, resp.String())
	})

	t.Run("disconnected", func(t *testing.T) {
		db := &mockstorage.StorageMock{}
		db.On("Ping", mock.Anything).Return(errors.New("connection refused"))
		server := setupTestRouter(t, withMockStorage(db))

		resp, err := resty.New().R().Get(server.URL + "/api/health")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.JSONEq(t, `{"status":"healthy","database":"disconnected"}`, resp.String())
	})
}

func TestGetRoot(t *testing.T) {
	server := setupTestRouter(t)

	resp, err := resty.New().R().Get(server.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"message":"User API is running!"}`, resp.String())
}

func TestStorageFailuresAreHidden(t *testing.T) {
	leak := errors.New("pq: password authentication failed for user appuser")

	db := &mockstorage.StorageMock{}
	db.On("GetUsers", mock.Anything).Return(nil, leak)
	db.On("BeginTransaction", mock.Anything).Return(nil, leak)
	server := setupTestRouter(t, withMockStorage(db))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "list", method: http.MethodGet, path: "/api/users"},
		{name: "create", method: http.MethodPost, path: "/api/users", body: `{"username":"a","email":"b"}`},
		{name: "delete", method: http.MethodDelete, path: "/api/users/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := resty.New().R()
			if tt.body != "" {
				req.SetHeader("Content-Type", "application/json").SetBody(tt.body)
			}
			resp, err := req.Execute(tt.method, server.URL+tt.path)
			require.NoError(t, err)

			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())
			assert.JSONEq(t, `{"error":"Internal server error"}`, resp.String())
			assert.NotContains(t, resp.String(), "password")
		})
	}
}

func TestGetApiinternalstats(t *testing.T) {
	server := setupTestRouter(t)

	for i := 0; i < 3; i++ {
		resp, err := resty.New().R().
			SetHeader("Content-Type", "application/json").
			SetBody(fmt.Sprintf(`{"username":"user%d","email":"u%d@x.com"}`, i, i)).
			Post(server.URL + "/api/users")
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode())
	}

	resp, err := resty.New().R().SetHeader("X-Real-IP", "10.1.2.3").Get(server.URL + "/api/internal/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())

	var stats models.InternalStatsResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &stats))
	assert.Equal(t, int64(3), stats.Users)

	resp, err = resty.New().R().SetHeader("X-Real-IP", "8.8.8.8").Get(server.URL + "/api/internal/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}

func TestCORS(t *testing.T) {
	server := setupTestRouter(t)

	resp, err := resty.New().R().
		SetHeader("Origin", "http://localhost:5173").
		SetHeader("Access-Control-Request-Method", http.MethodPost).
		Options(server.URL + "/api/users")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173", resp.Header().Get("Access-Control-Allow-Origin"))

	resp, err = resty.New().R().
		SetHeader("Origin", "http://evil.example.com").
		Get(server.URL + "/api/users")
	require.NoError(t, err)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWithoutAllowedOrigins(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	checker, err := ipchecker.New("")
	require.NoError(t, err)

	server := httptest.NewServer(New(service.New(db), checker, []string{}))
	defer server.Close()

	resp, err := resty.New().R().
		SetHeader("Origin", "http://evil.example.com").
		Get(server.URL + "/api/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))

	resp, err = resty.New().R().
		SetHeader("Origin", "http://evil.example.com").
		SetHeader("Access-Control-Request-Method", http.MethodPost).
		Options(server.URL + "/api/users")
	require.NoError(t, err)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	server := setupTestRouter(t)

	resp, err := resty.New().R().Get(server.URL + "/api/nothing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.JSONEq(t, `{"error":"Not found"}`, resp.String())

	resp, err = resty.New().R().Put(server.URL + "/api/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode())
}
