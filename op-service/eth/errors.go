package eth

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
)

// notFoundMessages are error fragments that nodes return instead of an empty result.
var notFoundMessages = []string{
	"block not found",
	"header not found",
	"unknown block",
}

// MaybeAsNotFoundErr joins ethereum.NotFound to err if err reports a missing block or header.
// Other errors, and errors that already are ethereum.NotFound, are returned unchanged.
func MaybeAsNotFoundErr(err error) error {
	if err == nil || errors.Is(err, ethereum.NotFound) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range notFoundMessages {
		if strings.Contains(msg, frag) {
			return errors.Join(err, ethereum.NotFound)
		}
	}
	return err
}
