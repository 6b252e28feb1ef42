// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mmeshcher/order-replacement/internal/model"
)

const orderGIDPrefix = "gid://shopify/Order/"

var (
	// ErrEmptyDecisions возвращается, если ответ покупателя не содержит решений.
	ErrEmptyDecisions = errors.New("no decisions submitted")
	// ErrInvalidDecision возвращается для решения с пустыми идентификаторами или неизвестным статусом.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrOrderMismatch возвращается, если решение относится к другому заказу.
	ErrOrderMismatch = errors.New("decision belongs to another order")
)

// NormalizeOrderName убирает пробелы и ведущий символ «#» из имени заказа.
func NormalizeOrderName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "#")
}

// IsValidOrderName проверяет, что имя заказа состоит из букв, цифр и символов «-», «_», «.».
func IsValidOrderName(name string) bool {
	name = NormalizeOrderName(name)
	if name == "" || len(name) > 64 {
		return false
	}
	for _, ch := range name {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '-' || ch == '_' || ch == '.' {
			continue
		}
		return false
	}
	return true
}

// NormalizeOrderID приводит числовой идентификатор заказа к глобальному виду.
func NormalizeOrderID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "gid://") {
		return id
	}
	return orderGIDPrefix + id
}

// TrailingSegment возвращает последний компонент пути внешнего идентификатора.
func TrailingSegment(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// SameTrailingSegment сравнивает идентификаторы только по последнему компоненту.
func SameTrailingSegment(a, b string) bool {
	ta, tb := TrailingSegment(a), TrailingSegment(b)
	return ta != "" && ta == tb
}

// ValidateDecisions проверяет набор решений покупателя для заказа orderName.
func ValidateDecisions(orderName string, decisions []model.Decision) error {
	if len(decisions) == 0 {
		return ErrEmptyDecisions
	}

	orderName = NormalizeOrderName(orderName)
	for i, d := range decisions {
		if d.OrderName != "" && NormalizeOrderName(d.OrderName) != orderName {
			return fmt.Errorf("%w: item %d", ErrOrderMismatch, i)
		}
		if strings.TrimSpace(d.OriginalProductRef) == "" || strings.TrimSpace(d.ReplacementProductRef) == "" {
			return fmt.Errorf("%w: item %d: empty product id", ErrInvalidDecision, i)
		}
		if d.Status != model.LineItemStatusAccepted && d.Status != model.LineItemStatusRejected {
			return fmt.Errorf("%w: item %d: status %q", ErrInvalidDecision, i, d.Status)
		}
	}
	return nil
}
