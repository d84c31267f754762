package tracker

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sethvargo/go-password/password"
)

const (
	shortIDLength = 9
	shortIDDigits = 3
)

// IDGenerator mints identifiers for the in-memory store. Postgres assigns
// its own.
type IDGenerator interface {
	NewID() (string, error)
}

type IDGeneratorFunc func() (string, error)

func (f IDGeneratorFunc) NewID() (string, error) {
	return f()
}

// ShortIDGenerator produces 9 char lowercase alphanumeric tokens.
type ShortIDGenerator struct{}

func (ShortIDGenerator) NewID() (string, error) {
	id, err := password.Generate(shortIDLength, shortIDDigits, 0, true, true)
	if err != nil {
		return "", fmt.Errorf("generate short id: %w", err)
	}
	return id, nil
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() (string, error) {
	return uuid.NewString(), nil
}
