// Package model содержит доменные сущности сервиса замены товаров в заказах.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomItemPrefix помечает идентификаторы товаров, отсутствующих в каталоге.
const CustomItemPrefix = "custom_"

// OrderStatus описывает статус пакета замен по заказу целиком.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusAccepted  OrderStatus = "Accepted"
	OrderStatusConfirmed OrderStatus = "Confirmed"
)

// Rank возвращает порядковый номер статуса; статус может только расти.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusPending:
		return 1
	case OrderStatusAccepted:
		return 2
	case OrderStatusConfirmed:
		return 3
	default:
		return 0
	}
}

// Valid сообщает, является ли значение известным статусом.
func (s OrderStatus) Valid() bool {
	return s.Rank() > 0
}

// CanTransitionTo проверяет переход строго на один шаг вперёд.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s.Valid() && next.Rank() == s.Rank()+1
}

// LineItemStatus описывает решение покупателя по конкретной позиции.
type LineItemStatus string

const (
	LineItemStatusUnset    LineItemStatus = ""
	LineItemStatusAccepted LineItemStatus = "Accepted"
	LineItemStatusRejected LineItemStatus = "Rejected"
)

// ReplacementRecord описывает одну предложенную замену позиции заказа.
type ReplacementRecord struct {
	ID        string
	OrderID   string
	OrderName string

	OriginalProductRef string
	OriginalHandle     string
	OriginalTitle      string
	Quantity           int
	UnitPrice          decimal.Decimal
	TotalPrice         decimal.Decimal
	Currency           string

	ReplacementProductRef  string
	ReplacementHandle      string
	ReplacementTitle       string
	ReplacementQuantity    int
	ReplacementPrice       decimal.Decimal
	TotalReplacementAmount decimal.Decimal
	Balance                decimal.Decimal

	CustomerName string
	SendDate     time.Time

	OrderStatus    OrderStatus
	LineItemStatus LineItemStatus

	AcceptedDate       *time.Time
	ConfirmedDate      *time.Time
	ReplacementAddedAt *time.Time
}

// IsCustom сообщает, что замена не является товаром каталога.
func (r ReplacementRecord) IsCustom() bool {
	return IsCustomItemID(r.ReplacementProductRef)
}

// IsCustomItemID проверяет зарезервированный префикс произвольного товара.
func IsCustomItemID(id string) bool {
	return strings.HasPrefix(id, CustomItemPrefix)
}

// Customer содержит контактные данные покупателя на момент предложения.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
}

// FullName возвращает имя и фамилию покупателя.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// LineItem описывает позицию заказа во внешней системе.
type LineItem struct {
	ID              string
	Title           string
	ProductHandle   string
	CurrentQuantity int
	UnitPrice       decimal.Decimal
	TotalPrice      decimal.Decimal
	Currency        string
}

// Order описывает заказ во внешней системе.
type Order struct {
	ID        string
	Name      string
	Customer  Customer
	LineItems []LineItem
}

// Replacement описывает выбранный сотрудником товар на замену.
type Replacement struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Handle    string          `json:"handle"`
	Price     decimal.Decimal `json:"price"`
	Custom    bool            `json:"custom"`
}

// Decision описывает решение покупателя по одной паре «исходный товар и замена».
type Decision struct {
	OrderName             string
	OriginalProductRef    string
	ReplacementProductRef string
	Status                LineItemStatus
}

// Proposal содержит созданный пакет замен.
type Proposal struct {
	OrderID   string
	OrderName string
	Records   []ReplacementRecord
}

// Store содержит настройки магазина. В системе активен ровно один экземпляр.
type Store struct {
	ExpirationHours int    `env:"EXPIRATION_HOURS" envDefault:"6"`
	CompanyName     string `env:"COMPANY_NAME"`
	SenderEmail     string `env:"SENDER_EMAIL"`
	ContactNo       string `env:"CONTACT_NO"`
	WhatsappNo      string `env:"WHATSAPP_NO"`
	CompanyAddress  string `env:"COMPANY_ADDRESS"`
	CopyrightYear   string `env:"COPYRIGHT_YEAR"`
	EmailColor      string `env:"EMAIL_COLOR" envDefault:"#000000"`
	EmailTitle      string `env:"EMAIL_TITLE"`
	EmailContent    string `env:"EMAIL_CONTENT"`
	ConfirmURL      string `env:"CONFIRM_URL"`
}

// BatchSummary описывает пакет замен для обзорных списков.
type BatchSummary struct {
	OrderID      string      `json:"orderId"`
	OrderName    string      `json:"orderName"`
	CustomerName string      `json:"customerName"`
	Status       OrderStatus `json:"status"`
	Items        int         `json:"items"`
	SendDate     time.Time   `json:"sendDate"`
}

// NewCustomItemID создаёт идентификатор произвольного товара вне каталога.
func NewCustomItemID() string {
	return CustomItemPrefix + uuid.NewString()
}

// EditLineItem описывает позицию заказа в открытой сессии редактирования.
type EditLineItem struct {
	ID       string
	Quantity int
}

// EditSession описывает сессию редактирования заказа во внешней системе.
type EditSession struct {
	ID        string
	LineItems []EditLineItem
}

// Notification содержит данные письма покупателю о предложенных заменах.
type Notification struct {
	OrderID   string
	OrderName string
	Customer  Customer
	Items     []ReplacementRecord
	Store     Store
}
