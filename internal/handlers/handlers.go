package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"rfqmarket/internal/apperr"
	"rfqmarket/internal/auth"
)

// ограничение размера тела запроса
const maxBodyBytes = 1048576

// Handler HTTP-слой поверх сервисов
type Handler struct {
	Services
	log      *zap.Logger
	validate *validator.Validate
}

// NewHandler создает новый Handler
func NewHandler(services Services, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	v := validator.New()
	// в ошибках поля называются как в JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Services: services, log: log, validate: v}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// decode читает JSON-тело и проверяет теги validate
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("Request body too large")
		}
		return apperr.Validation("Invalid JSON format")
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.Internal("Failed to validate request", err)
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return apperr.Fields("Invalid request", fields)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "oneof":
		return "Must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	default:
		return "Invalid value"
	}
}

// requireSelf отклоняет userId из тела, если он не совпадает с владельцем токена
func requireSelf(actorID, bodyUserID string) error {
	if bodyUserID != "" && bodyUserID != actorID {
		return apperr.Forbidden("userId does not match the authenticated user")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError формирует {"error", "details", ...extra}; внутренние детали только в лог
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("Internal server error", err)
	}

	body := map[string]any{"error": e.Message}
	if len(e.Fields) > 0 {
		body["details"] = e.Fields
	}
	for k, v := range e.Extra {
		if k != "error" && k != "details" {
			body[k] = v
		}
	}

	status := e.Status()
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("actor", auth.ActorFrom(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

// AuthError ответ для auth-мидлвари
func (h *Handler) AuthError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "Invalid or expired token"
	if errors.Is(err, auth.ErrNoToken) {
		msg = "Authorization header required"
	}
	h.writeError(w, r, apperr.Unauthorized(msg))
}

// parseLimit парсит limit из query, с дефолтом и ограничением
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= max {
			limit = l
		}
	}
	return limit
}
