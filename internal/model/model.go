// Package model содержит доменные сущности сервиса пресейла WUSLE.
package model

import "time"

// User представляет зарегистрированного участника пресейла.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Currency описывает валюту, которой оплачена покупка токенов.
type Currency string

const (
	CurrencySOL  Currency = "SOL"
	CurrencyUSDT Currency = "USDT"
)

// IsValid сообщает, входит ли валюта в поддерживаемый набор.
func (c Currency) IsValid() bool {
	return c == CurrencySOL || c == CurrencyUSDT
}

// Stage описывает один этап пресейла: временное окно, цель сбора и курс токена.
// Значения Target и Raised выражены в долларовом эквиваленте.
type Stage struct {
	ID           int64
	StageNumber  int
	Target       float64
	Raised       float64
	StartTime    time.Time
	EndTime      time.Time
	Rate         float64
	ListingPrice float64
}

// Slip описывает квитанцию об одной покупке токенов с кодом погашения.
type Slip struct {
	ID             int64
	UserID         int64
	WalletAddress  string
	Currency       Currency
	AmountPaid     float64
	WuslePurchased float64
	RedeemCode     string
	TxSignature    string
	CreatedAt      time.Time
}

// UserTotals содержит накопленные итоги покупок пользователя,
// вычисляемые по его квитанциям.
type UserTotals struct {
	WuslePurchased float64 `json:"wuslePurchased"`
	Spent          float64 `json:"spent"`
}
