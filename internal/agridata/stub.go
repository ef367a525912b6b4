package agridata

import (
	"context"
	"strings"
	"time"
)

// Stub implementations back the pipelines when no real backend is configured
// (degraded startup) and keep package tests hermetic.

// StubWeather returns a fixed forecast.
type StubWeather struct {
	Report *WeatherReport
	Err    error
}

func (s *StubWeather) Forecast(_ context.Context, location string, days int) (*WeatherReport, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Report != nil {
		return s.Report, nil
	}
	report := &WeatherReport{Location: location}
	for i := 0; i < days; i++ {
		report.Days = append(report.Days, WeatherDay{
			Date:     time.Now().AddDate(0, 0, i).Format("2006-01-02"),
			TempMin:  8,
			TempMax:  18,
			PrecipMM: 2,
			WindKPH:  12,
		})
	}
	return report, nil
}

// StubRegulatory serves a small fixed product list.
type StubRegulatory struct {
	Products []Product
	Err      error
}

func (s *StubRegulatory) LookupProducts(_ context.Context, query string) ([]Product, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	lower := strings.ToLower(query)
	var hits []Product
	for _, p := range s.Products {
		if strings.Contains(lower, strings.ToLower(p.Name)) ||
			strings.Contains(lower, strings.ToLower(p.AMMCode)) {
			hits = append(hits, p)
		}
	}
	return hits, nil
}

// StubFarm serves fixed parcels regardless of farm id.
type StubFarm struct {
	ParcelList []Parcel
	Err        error
}

func (s *StubFarm) Parcels(_ context.Context, _ string) ([]Parcel, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.ParcelList, nil
}
