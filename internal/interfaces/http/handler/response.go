package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dreschagin/reskpoints/internal/application/usecase"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// maxBodyBytes ограничивает размер тела запроса
const maxBodyBytes = 1 << 20

// statusForKind сопоставляет вид ошибки прикладного слоя и HTTP статус
func statusForKind(kind usecase.ErrorKind) int {
	switch kind {
	case usecase.KindValidation:
		return http.StatusBadRequest
	case usecase.KindNotFound:
		return http.StatusNotFound
	case usecase.KindInvalidTransition:
		return http.StatusConflict
	case usecase.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError пишет структурированную ошибку. Внутренние детали наружу не отдаются.
func writeError(w http.ResponseWriter, log *logger.Logger, r *http.Request, err error) {
	kind := usecase.KindOf(err)
	status := statusForKind(kind)

	message := err.Error()
	var ue *usecase.Error
	if errors.As(err, &ue) {
		message = ue.Message
	}

	if status >= http.StatusInternalServerError {
		log.Error("Request failed", err, "method", r.Method, "path", r.URL.Path, "kind", string(kind))
		if kind == usecase.KindInternal {
			message = "internal server error"
		}
	}

	middleware.WriteError(w, status, string(kind), message)
}

// decodeJSON читает тело запроса; ошибки разбора считаются ошибками валидации
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &usecase.Error{Kind: usecase.KindValidation, Message: "request body is required", Err: err}
		case errors.As(err, &tooLarge):
			return &usecase.Error{Kind: usecase.KindValidation, Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), Err: err}
		default:
			return &usecase.Error{Kind: usecase.KindValidation, Message: "invalid JSON body: " + err.Error(), Err: err}
		}
	}
	return nil
}
