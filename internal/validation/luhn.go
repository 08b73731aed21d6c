// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidVoucherCode проверяет, что код состоит из цифр и последняя цифра
// совпадает с контрольной цифрой Луна для остальных.
func IsValidVoucherCode(code string) bool {
	n := len(code)
	if n == 0 {
		return false
	}
	check, ok := LuhnCheckDigit(code[:n-1])
	return ok && code[n-1] == check
}

// LuhnCheckDigit вычисляет контрольную цифру, которую нужно дописать к payload,
// чтобы код прошёл IsValidVoucherCode. Payload должен состоять из цифр.
func LuhnCheckDigit(payload string) (byte, bool) {
	sum := 0
	double := true

	for i := len(payload) - 1; i >= 0; i-- {
		ch := rune(payload[i])
		if !unicode.IsDigit(ch) {
			return 0, false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return byte('0' + (10-sum%10)%10), true
}
