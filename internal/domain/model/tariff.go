package model

import "mentorium-bot/internal/domain"

// Tariff is a static catalog entry. The catalog is defined in code and never
// persisted; prices are whole UZS.
type Tariff struct {
	Code         string
	DurationDays int
	PriceUZS     int64
	Currency     string
}

var tariffs = []Tariff{
	{Code: "monthly", DurationDays: 30, PriceUZS: 99_000, Currency: "UZS"},
	{Code: "quarterly", DurationDays: 90, PriceUZS: 249_000, Currency: "UZS"},
	{Code: "annual", DurationDays: 365, PriceUZS: 899_000, Currency: "UZS"},
}

// Tariffs returns the full catalog in display order.
func Tariffs() []Tariff {
	out := make([]Tariff, len(tariffs))
	copy(out, tariffs)
	return out
}

// TariffByCode resolves a catalog entry; unknown codes are a hard error.
func TariffByCode(code string) (*Tariff, error) {
	for i := range tariffs {
		if tariffs[i].Code == code {
			t := tariffs[i]
			return &t, nil
		}
	}
	return nil, domain.ErrUnknownTariff
}
