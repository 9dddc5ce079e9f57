package intake

import (
	"errors"
	"net/mail"
	"strconv"
	"strings"
)

const maxPartySize = 20

var (
	errInvalidEmail     = errors.New("invalid email address")
	errInvalidPartySize = errors.New("invalid party size")
)

// validateEmail accepts a bare RFC 5322 address whose domain has at least
// one dot and does not start or end with one.
func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return errInvalidEmail
	}
	at := strings.LastIndex(addr.Address, "@")
	if !isValidDomain(addr.Address[at+1:]) {
		return errInvalidEmail
	}
	return nil
}

func isValidDomain(domain string) bool {
	if domain == "" || !strings.Contains(domain, ".") {
		return false
	}
	return !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func validatePartySize(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxPartySize {
		return errInvalidPartySize
	}
	return nil
}

// slotValidators reject values that would produce an unfulfillable request.
var slotValidators = map[string]func(string) error{
	"NumPeople": validatePartySize,
	"Email":     validateEmail,
}

var invalidSlotPrompts = map[string]string{
	"NumPeople": "I can book for 1 to 20 people. How many are in your party?",
	"Email":     "That doesn't look like a valid email address. Where should I send the recommendations?",
}
