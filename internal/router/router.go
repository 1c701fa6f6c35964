// Package router exposes the user service over HTTP: it parses requests,
// calls the service and turns its results and errors into JSON responses.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/patric-chuzhbe/userapi/internal/gzippedhttp"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
)

const maxRequestBodySize = 1 << 20

const (
	msgRunning          = "User API is running!"
	msgUserDeleted      = "User deleted successfully"
	msgFieldsRequired   = "Username and email are required"
	msgAlreadyExists    = "Username or email already exists"
	msgFieldTooLong     = "Username must be at most 80 and email at most 120 characters"
	msgUserNotFound     = "User not found"
	msgInvalidBody      = "Invalid request body"
	msgInternalError    = "Internal server error"
	msgRouteNotFound    = "Not found"
	msgMethodNotAllowed = "Method not allowed"
)

type userService interface {
	ListUsers(ctx context.Context) (models.Users, error)
	CreateUser(ctx context.Context, request models.CreateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	Health(ctx context.Context) string
	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)
}

type trustedSubnetGuard interface {
	TrustedOnly(h http.Handler) http.Handler
}

// Router holds the dependencies of the HTTP handlers.
type Router struct {
	service userService
}

// GetRoot reports that the service is up.
func (router *Router) GetRoot(res http.ResponseWriter, req *http.Request) {
	writeJSON(res, http.StatusOK, models.MessageResponse{Message: msgRunning})
}

// GetApihealth reports the service status and the storage connectivity.
// It always answers 200.
func (router *Router) GetApihealth(res http.ResponseWriter, req *http.Request) {
	writeJSON(res, http.StatusOK, models.HealthResponse{
		Status:   "healthy",
		Database: router.service.Health(req.Context()),
	})
}

// GetApiusers lists every user.
func (router *Router) GetApiusers(res http.ResponseWriter, req *http.Request) {
	users, err := router.service.ListUsers(req.Context())
	if err != nil {
		writeServiceError(res, req, err)
		return
	}

	if users == nil {
		users = models.Users{}
	}

	writeJSON(res, http.StatusOK, users)
}

// PostApiusers creates a user from a {"username", "email"} JSON body.
func (router *Router) PostApiusers(res http.ResponseWriter, req *http.Request) {
	var request models.CreateUserRequest

	decoder := json.NewDecoder(http.MaxBytesReader(res, req.Body, maxRequestBodySize))
	if err := decoder.Decode(&request); err != nil {
		logger.Log.Debugln("unable to decode request body", "error", err)
		writeError(res, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if decoder.More() {
		logger.Log.Debugln("trailing data after request body")
		writeError(res, http.StatusBadRequest, msgInvalidBody)
		return
	}

	usr, err := router.service.CreateUser(req.Context(), request)
	if err != nil {
		writeServiceError(res, req, err)
		return
	}

	writeJSON(res, http.StatusCreated, usr)
}

// DeleteApiusersID deletes the user identified by the {id} path parameter.
func (router *Router) DeleteApiusersID(res http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(res, http.StatusNotFound, msgUserNotFound)
		return
	}

	if err := router.service.DeleteUser(req.Context(), id); err != nil {
		writeServiceError(res, req, err)
		return
	}

	writeJSON(res, http.StatusOK, models.MessageResponse{Message: msgUserDeleted})
}

// GetApiinternalstats returns service statistics to trusted clients.
func (router *Router) GetApiinternalstats(res http.ResponseWriter, req *http.Request) {
	stats, err := router.service.GetInternalStats(req.Context())
	if err != nil {
		writeServiceError(res, req, err)
		return
	}

	writeJSON(res, http.StatusOK, stats)
}

// New builds the HTTP handler. Cross-origin requests are accepted from allowedOrigins.
func New(
	service userService,
	guard trustedSubnetGuard,
	allowedOrigins []string,
) *chi.Mux {
	myRouter := Router{
		service: service,
	}

	corsOptions := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Encoding", logger.RequestIDHeader},
		ExposedHeaders: []string{logger.RequestIDHeader},
		MaxAge:         300,
	}
	// go-chi/cors allows every origin when the list is empty.
	if len(allowedOrigins) == 0 {
		corsOptions.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}

	router := chi.NewRouter()
	router.Use(
		logger.WithLoggingHTTPMiddleware,
		cors.Handler(corsOptions),
		gzippedhttp.UngzipRequest,
		gzippedhttp.GzipResponse,
	)

	router.NotFound(func(res http.ResponseWriter, req *http.Request) {
		writeError(res, http.StatusNotFound, msgRouteNotFound)
	})
	router.MethodNotAllowed(func(res http.ResponseWriter, req *http.Request) {
		writeError(res, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})

	router.Get(`/`, myRouter.GetRoot)
	router.Get(`/api/health`, myRouter.GetApihealth)
	router.Get(`/api/users`, myRouter.GetApiusers)
	router.Post(`/api/users`, myRouter.PostApiusers)
	router.Delete(`/api/users/{id:[0-9]+}`, myRouter.DeleteApiusersID)
	router.With(guard.TrustedOnly).Get(`/api/internal/stats`, myRouter.GetApiinternalstats)

	return router
}

func writeJSON(res http.ResponseWriter, status int, payload interface{}) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)

	if err := json.NewEncoder(res).Encode(payload); err != nil {
		logger.Log.Errorln("unable to encode response", "error", err)
	}
}

func writeError(res http.ResponseWriter, status int, message string) {
	writeJSON(res, status, models.ErrorResponse{Error: message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Unclassified errors are logged and answered with a generic message.
func writeServiceError(res http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrFieldTooLong):
		writeError(res, http.StatusBadRequest, msgFieldTooLong)
	case errors.Is(err, models.ErrValidation):
		writeError(res, http.StatusBadRequest, msgFieldsRequired)
	case errors.Is(err, models.ErrConflict):
		writeError(res, http.StatusBadRequest, msgAlreadyExists)
	case errors.Is(err, models.ErrNotFound):
		writeError(res, http.StatusNotFound, msgUserNotFound)
	default:
		logger.Log.Errorln(
			"request failed",
			"method", req.Method,
			"uri", req.RequestURI,
			"request_id", req.Header.Get(logger.RequestIDHeader),
			"error", err,
		)
		writeError(res, http.StatusInternalServerError, msgInternalError)
	}
}
