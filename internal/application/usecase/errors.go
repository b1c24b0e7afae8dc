package usecase

import (
	"errors"
	"fmt"

	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/service"
)

// ErrorKind - стабильная категория ошибки прикладного слоя
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindNotFound          ErrorKind = "not_found"
	KindUnavailable       ErrorKind = "unavailable"
	KindInternal          ErrorKind = "internal"
)

// ErrIngestionStopped возвращается после остановки буфера ingestion
var ErrIngestionStopped = errors.New("ingestion buffer is stopped")

// Error - структурированная ошибка границы системы
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает вид ошибки; ошибки вне таксономии считаются internal
func KindOf(err error) ErrorKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindInternal
}

// classify переводит доменные ошибки в *Error
func classify(err error, message string) error {
	if err == nil {
		return nil
	}

	var (
		ue  *Error
		ve  *service.ValidationError
		ite *service.InvalidTransitionError
	)
	switch {
	case errors.As(err, &ue):
		return err
	case errors.As(err, &ve):
		return &Error{Kind: KindValidation, Message: ve.Error(), Err: err}
	case errors.As(err, &ite):
		return &Error{Kind: KindInvalidTransition, Message: ite.Error(), Err: err}
	case errors.Is(err, repository.ErrTicketNotFound):
		return &Error{Kind: KindNotFound, Message: "ticket not found", Err: err}
	case errors.Is(err, ErrIngestionStopped):
		return &Error{Kind: KindUnavailable, Message: "ingestion is shutting down", Err: err}
	default:
		return &Error{Kind: KindInternal, Message: message, Err: err}
	}
}
