package model

import "time"

// LookupStatus records how much of the vehicle data a run recovered.
type LookupStatus string

const (
	// StatusComplete means both providers responded.
	StatusComplete LookupStatus = "complete"
	// StatusPartial means exactly one provider responded.
	StatusPartial LookupStatus = "partial"
	// StatusEmpty means neither provider responded.
	StatusEmpty LookupStatus = "empty"
)

// CachedLookup is the persisted record of the last known canonical data
// for a plate. Flattened primitive columns support plain SQL queries over
// the cache; Record preserves the full source-tagged structure so a cache
// hit loses no fidelity.
type CachedLookup struct {
	ID    string `json:"id"`
	Plate string `json:"plate"`

	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Variant      string `json:"variant,omitempty"`
	Colour       string `json:"colour,omitempty"`
	FuelType     string `json:"fuel_type,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	BodyType     string `json:"body_type,omitempty"`
	EngineCC     int    `json:"engine_cc,omitempty"`
	Doors        int    `json:"doors,omitempty"`
	Seats        int    `json:"seats,omitempty"`
	Year         int    `json:"year,omitempty"`

	Record    *VehicleRecord `json:"record"`
	Status    LookupStatus   `json:"status"`
	Provider  string         `json:"provider"`
	Sandbox   bool           `json:"sandbox"`
	CheckedAt time.Time      `json:"checked_at"`
}

// NewCachedLookup flattens a canonical record into its persisted form.
// The status is derived from which providers responded.
func NewCachedLookup(rec *VehicleRecord, provider string, sandbox bool) *CachedLookup {
	c := &CachedLookup{
		Plate:     rec.Plate,
		Record:    rec,
		Status:    statusFor(rec),
		Provider:  provider,
		Sandbox:   sandbox,
		CheckedAt: rec.CheckedAt,
	}
	c.Make = strField(rec.Make)
	c.Model = strField(rec.Model)
	c.Variant = strField(rec.Variant)
	c.Colour = strField(rec.Colour)
	c.FuelType = strField(rec.FuelType)
	c.Transmission = strField(rec.Transmission)
	c.BodyType = strField(rec.BodyType)
	c.EngineCC = intField(rec.EngineCC)
	c.Doors = intField(rec.Doors)
	c.Seats = intField(rec.Seats)
	c.Year = intField(rec.YearOfManufacture)
	return c
}

func statusFor(rec *VehicleRecord) LookupStatus {
	switch {
	case rec.HasSource(SourceUKVD) && rec.HasSource(SourceCapHPI):
		return StatusComplete
	case rec.HasSource(SourceUKVD) || rec.HasSource(SourceCapHPI):
		return StatusPartial
	default:
		return StatusEmpty
	}
}

func strField(f *Field[string]) string {
	if f == nil {
		return ""
	}
	return f.Value
}

func intField(f *Field[int]) int {
	if f == nil {
		return 0
	}
	return f.Value
}
