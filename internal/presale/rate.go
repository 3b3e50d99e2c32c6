package presale

import (
	"math"
	"strconv"
	"strings"
)

// DefaultRate — курс токена, применяемый когда активный этап не определён.
const DefaultRate = 0.0037

// DefaultListingPrice — ожидаемая цена листинга по умолчанию, информационное поле.
const DefaultListingPrice = 0.005

// ParseAmount преобразует введённую пользователем сумму в число.
// Пустая строка, нечисловой ввод и отрицательные значения дают 0.
func ParseAmount(input string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ConvertToTokens возвращает количество токенов WUSLE за указанную сумму
// по курсу этапа. Некорректная сумма даёт 0, никогда не NaN.
func ConvertToTokens(amount, rate float64) float64 {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = DefaultRate
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return amount / rate
}
