// Package validation содержит функции валидации входных данных.
package validation

import "strings"

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// IsValidSolanaAddress проверяет, что строка похожа на base58-адрес Solana:
// допустимая длина и только символы base58-алфавита.
func IsValidSolanaAddress(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	for _, ch := range addr {
		if !strings.ContainsRune(base58Alphabet, ch) {
			return false
		}
	}
	return true
}

// IsValidTxSignature проверяет подпись транзакции: base58-строка
// фиксированного для Solana диапазона длин.
func IsValidTxSignature(sig string) bool {
	if len(sig) < 64 || len(sig) > 90 {
		return false
	}
	for _, ch := range sig {
		if !strings.ContainsRune(base58Alphabet, ch) {
			return false
		}
	}
	return true
}
