// Package agridata holds the domain-data collaborators the pipelines call
// out to: weather forecasts, EPHY regulatory lookups, and farm records.
// Every call is a single context-bound operation returning a structured
// result or a typed failure.
package agridata

import (
	"context"
	"fmt"
	"time"
)

// WeatherDay is one day of forecast.
type WeatherDay struct {
	Date     string  `json:"date"`
	TempMin  float64 `json:"temp_min"`
	TempMax  float64 `json:"temp_max"`
	PrecipMM float64 `json:"precip_mm"`
	WindKPH  float64 `json:"wind_kph"`
}

// WeatherReport is the structured result of a forecast lookup.
type WeatherReport struct {
	Location string       `json:"location"`
	Days     []WeatherDay `json:"days"`
}

// Product is one EPHY product record.
type Product struct {
	Name       string   `json:"name"`
	AMMCode    string   `json:"amm_code"`
	Authorized bool     `json:"authorized"`
	ZNTMeters  float64  `json:"znt_meters"`
	MaxDose    string   `json:"max_dose"`
	Usages     []string `json:"usages"`
}

// Parcel is one farm parcel record.
type Parcel struct {
	ID            string    `json:"id"`
	FarmID        string    `json:"farm_id,omitempty"`
	Name          string    `json:"name"`
	Crop          string    `json:"crop"`
	AreaHa        float64   `json:"area_ha"`
	YieldTHa      float64   `json:"yield_t_ha"`
	LastTreatment time.Time `json:"last_treatment"`
}

// WeatherService returns a forecast for a location.
type WeatherService interface {
	Forecast(ctx context.Context, location string, days int) (*WeatherReport, error)
}

// RegulatoryService looks up EPHY products matching a free-text query.
type RegulatoryService interface {
	LookupProducts(ctx context.Context, query string) ([]Product, error)
}

// FarmService returns the parcels of one farm.
type FarmService interface {
	Parcels(ctx context.Context, farmID string) ([]Parcel, error)
}

// UnavailableError is the typed failure every collaborator returns when the
// backing service cannot be reached.
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("agridata: %s unavailable: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
