package agridata

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Parcels returns all parcels of a farm, newest treatment first.
// It implements FarmService.
func (s *Store) Parcels(ctx context.Context, farmID string) ([]Parcel, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, farm_id, name, crop, area_ha, yield_t_ha, last_treatment
		FROM parcels
		WHERE farm_id = $1
		ORDER BY last_treatment DESC`, farmID)
	if err != nil {
		return nil, &UnavailableError{Service: "farm_data", Err: err}
	}
	defer rows.Close()

	var parcels []Parcel
	for rows.Next() {
		var p Parcel
		if err := rows.Scan(&p.ID, &p.FarmID, &p.Name, &p.Crop, &p.AreaHa, &p.YieldTHa, &p.LastTreatment); err != nil {
			return nil, &UnavailableError{Service: "farm_data", Err: err}
		}
		parcels = append(parcels, p)
	}
	return parcels, rows.Err()
}

// InsertParcel stores one parcel record, generating its id when empty.
func (s *Store) InsertParcel(ctx context.Context, p Parcel) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.LastTreatment.IsZero() {
		p.LastTreatment = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO parcels (id, farm_id, name, crop, area_ha, yield_t_ha, last_treatment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			crop = EXCLUDED.crop,
			area_ha = EXCLUDED.area_ha,
			yield_t_ha = EXCLUDED.yield_t_ha,
			last_treatment = EXCLUDED.last_treatment`,
		p.ID, p.FarmID, p.Name, p.Crop, p.AreaHa, p.YieldTHa, p.LastTreatment)
	if err != nil {
		return fmt.Errorf("insert parcel %s: %w", p.Name, err)
	}
	return nil
}
