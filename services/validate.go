package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"casas_scrooper/models"
)

var ErrInvalidListing = errors.New("invalid listing")

var validate = validator.New()

// CleanListing returns a copy of l with scraper noise trimmed: surrounding
// whitespace and currency case. l itself is left untouched.
func CleanListing(l *models.Listing) *models.Listing {
	if l == nil {
		return nil
	}
	c := *l
	l = &c
	l.Source = strings.TrimSpace(l.Source)
	l.ExternalID = strings.TrimSpace(l.ExternalID)
	l.URL = strings.TrimSpace(l.URL)
	l.Title = strings.TrimSpace(l.Title)
	l.City = strings.TrimSpace(l.City)
	l.Zone = strings.TrimSpace(l.Zone)
	l.Currency = strings.ToUpper(strings.TrimSpace(l.Currency))
	l.TransactionType = strings.ToLower(strings.TrimSpace(l.TransactionType))
	return l
}

// ValidateListing checks the struct tags on models.Listing.
func ValidateListing(l *models.Listing) error {
	if l == nil {
		return fmt.Errorf("%w: nil", ErrInvalidListing)
	}
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w %s/%s: %v", ErrInvalidListing, l.Source, l.ExternalID, err)
	}
	return nil
}

// partitionValid splits listings into valid ones and a count of the rest.
func partitionValid(listings []*models.Listing) ([]*models.Listing, []error) {
	valid := make([]*models.Listing, 0, len(listings))
	var invalid []error
	for _, l := range listings {
		l = CleanListing(l)
		if err := ValidateListing(l); err != nil {
			invalid = append(invalid, err)
			continue
		}
		valid = append(valid, l)
	}
	return valid, invalid
}
