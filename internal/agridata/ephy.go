package agridata

import (
	"context"
	"fmt"
	"strings"
)

// LookupProducts searches the EPHY mirror for products whose name or AMM code
// appears in the query text. It implements RegulatoryService.
func (s *Store) LookupProducts(ctx context.Context, query string) ([]Product, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT name, amm_code, authorized, znt_meters, max_dose, usages
		FROM ephy_products
		WHERE lower(name) = ANY($1) OR lower(amm_code) = ANY($1)
		LIMIT 10`, terms)
	if err != nil {
		return nil, &UnavailableError{Service: "regulatory", Err: err}
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.Name, &p.AMMCode, &p.Authorized, &p.ZNTMeters, &p.MaxDose, &p.Usages); err != nil {
			return nil, &UnavailableError{Service: "regulatory", Err: err}
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// InsertProduct stores or refreshes one EPHY product record, keyed by AMM.
func (s *Store) InsertProduct(ctx context.Context, p Product) error {
	if p.Usages == nil {
		p.Usages = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO ephy_products (name, amm_code, authorized, znt_meters, max_dose, usages)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (amm_code) DO UPDATE SET
			name = EXCLUDED.name,
			authorized = EXCLUDED.authorized,
			znt_meters = EXCLUDED.znt_meters,
			max_dose = EXCLUDED.max_dose,
			usages = EXCLUDED.usages`,
		p.Name, p.AMMCode, p.Authorized, p.ZNTMeters, p.MaxDose, p.Usages)
	if err != nil {
		return fmt.Errorf("insert product %s: %w", p.AMMCode, err)
	}
	return nil
}

// searchTerms extracts lowercase candidate product tokens from a query.
// Short stop-words are dropped to keep the match list tight.
func searchTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?'\"()")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}
