package dedup

import (
	"time"

	"casas_scrooper/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func listing(source, id string, mutate ...func(l *models.Listing)) *models.Listing {
	l := &models.Listing{
		Source:          source,
		ExternalID:      id,
		URL:             "https://" + source + ".com.do/" + id,
		Title:           "Apartamento en venta Piantini torre moderna",
		City:            "Santo Domingo",
		Zone:            "Piantini",
		Price:           10_000_000,
		Currency:        models.CurrencyDOP,
		Area:            floatPtr(150),
		Bedrooms:        intPtr(3),
		Bathrooms:       intPtr(2),
		PropertyType:    "apartment",
		TransactionType: models.TransactionSale,
	}
	for _, m := range mutate {
		m(l)
	}
	return l
}
