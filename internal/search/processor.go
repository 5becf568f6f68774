package search

import (
	"strings"

	"github.com/hyperjump/kbase/internal/models"
)

// ProcessQuery validates the query and applies defaults, capping TopK at maxTopK when positive.
func ProcessQuery(query *models.Query, maxTopK int) error {
	if strings.TrimSpace(query.Query) == "" {
		return ErrEmptyQuery
	}
	if err := query.Validate(); err != nil {
		return err
	}
	if maxTopK > 0 && query.TopK > maxTopK {
		query.TopK = maxTopK
	}
	return nil
}
