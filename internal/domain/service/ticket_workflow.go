package service

import (
	"fmt"

	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// InvalidTransitionError возвращается при попытке перехода, которого нет в таблице
type InvalidTransitionError struct {
	From valueobject.TicketStatus
	To   valueobject.TicketStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

var allowedTransitions = map[valueobject.TicketStatus][]valueobject.TicketStatus{
	valueobject.StatusOpen:       {valueobject.StatusInProgress, valueobject.StatusResolved, valueobject.StatusClosed},
	valueobject.StatusInProgress: {valueobject.StatusOpen, valueobject.StatusResolved, valueobject.StatusClosed},
	valueobject.StatusResolved:   {valueobject.StatusOpen, valueobject.StatusClosed},
	valueobject.StatusClosed:     {valueobject.StatusOpen},
}

// CanTransition сообщает, разрешен ли переход from -> to
func CanTransition(from, to valueobject.TicketStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition возвращает *InvalidTransitionError для запрещенного перехода
func ValidateTransition(from, to valueobject.TicketStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// AllowedTransitions возвращает копию списка допустимых целевых статусов
func AllowedTransitions(from valueobject.TicketStatus) []valueobject.TicketStatus {
	return append([]valueobject.TicketStatus(nil), allowedTransitions[from]...)
}
