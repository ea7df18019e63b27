package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Service struct {
	UnitPrice decimal.Decimal
}

func New(unitPrice string) (Service, error) {
	p, err := decimal.NewFromString(unitPrice)
	if err != nil {
		return Service{}, err
	}
	if p.Sign() <= 0 {
		return Service{}, errors.New("unit price must be positive")
	}
	return Service{UnitPrice: p}, nil
}

// Amount returns count × unit price as a canonical 2-decimal string,
// rounded half up. The returned string is what gets signed and what callback
// amounts are compared against.
func (s Service) Amount(count int) (string, error) {
	if count <= 0 {
		return "", errors.New("count must be positive")
	}
	return s.UnitPrice.Mul(decimal.NewFromInt(int64(count))).StringFixed(2), nil
}

// Equal reports whether two decimal amount strings are numerically equal,
// so "9.9" from a gateway notification matches a stored "9.90".
func Equal(a, b string) bool {
	da, err := decimal.NewFromString(a)
	if err != nil {
		return false
	}
	db, err := decimal.NewFromString(b)
	if err != nil {
		return false
	}
	return da.Equal(db)
}
