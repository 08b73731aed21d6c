package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidWallet возвращается для некорректного адреса кошелька.
var ErrInvalidWallet = errors.New("invalid wallet address")

var basenamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,30}(\.[a-z0-9][a-z0-9-]{0,30})+$`)

// IsValidBasename проверяет имя участника вида crypto.base.
func IsValidBasename(name string) bool {
	return basenamePattern.MatchString(name)
}

// NormalizeWallet проверяет EVM-адрес и возвращает его в форме с контрольной
// суммой EIP-55. Нулевой адрес не принимается.
func NormalizeWallet(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", ErrInvalidWallet
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return "", ErrInvalidWallet
	}
	return addr.Hex(), nil
}
