package model

import "time"

// FuelEconomy holds manufacturer fuel consumption figures in miles per gallon.
type FuelEconomy struct {
	UrbanMPG      float64 `json:"urban_mpg,omitempty"`
	ExtraUrbanMPG float64 `json:"extra_urban_mpg,omitempty"`
	CombinedMPG   float64 `json:"combined_mpg,omitempty"`
}

// Valuation holds the three price points returned by the valuation provider.
type Valuation struct {
	PrivateGBP float64 `json:"private_gbp"`
	RetailGBP  float64 `json:"retail_gbp"`
	TradeGBP   float64 `json:"trade_gbp"`
	Confidence string  `json:"confidence,omitempty"`
}

// MOTTest is a single MOT test record.
type MOTTest struct {
	TestDate   time.Time  `json:"test_date"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Result     string     `json:"result"`
	Odometer   int        `json:"odometer"`
	Advisories []string   `json:"advisories,omitempty"`
	Failures   []string   `json:"failures,omitempty"`
}

// MileageEntry is a single reading from the provider's mileage record list.
// Origin is the provider-reported reading origin (MOT station, keeper
// change), not to be confused with the record-level source tag.
type MileageEntry struct {
	Date    time.Time `json:"date"`
	Mileage int       `json:"mileage"`
	Origin  string    `json:"origin,omitempty"`
}

// ProvenanceFlags holds the ownership and condition markers from the
// vehicle-history check.
type ProvenanceFlags struct {
	Stolen             bool `json:"stolen"`
	WrittenOff         bool `json:"written_off"`
	OutstandingFinance bool `json:"outstanding_finance"`
	Imported           bool `json:"imported"`
	Scrapped           bool `json:"scrapped"`
	PreviousKeepers    int  `json:"previous_keepers"`
}

// VehicleRecord is the merged, source-tagged view of one vehicle at one
// point in time. It is constructed fresh on every successful enrichment
// run and is immutable once returned; the next run for the same plate
// supersedes it rather than mutating it.
type VehicleRecord struct {
	Plate string `json:"plate"`

	Make              *Field[string] `json:"make,omitempty"`
	Model             *Field[string] `json:"model,omitempty"`
	Variant           *Field[string] `json:"variant,omitempty"`
	Colour            *Field[string] `json:"colour,omitempty"`
	FuelType          *Field[string] `json:"fuel_type,omitempty"`
	Transmission      *Field[string] `json:"transmission,omitempty"`
	BodyType          *Field[string] `json:"body_type,omitempty"`
	InsuranceGroup    *Field[string] `json:"insurance_group,omitempty"`
	EngineCC          *Field[int]    `json:"engine_cc,omitempty"`
	Doors             *Field[int]    `json:"doors,omitempty"`
	Seats             *Field[int]    `json:"seats,omitempty"`
	CO2GKM            *Field[int]    `json:"co2_gkm,omitempty"`
	AnnualTaxGBP      *Field[int]    `json:"annual_tax_gbp,omitempty"`
	YearOfManufacture *Field[int]    `json:"year_of_manufacture,omitempty"`

	FuelEconomy    *Field[FuelEconomy]     `json:"fuel_economy,omitempty"`
	Valuation      *Field[Valuation]       `json:"valuation,omitempty"`
	MOTTests       *Field[[]MOTTest]       `json:"mot_tests,omitempty"`
	MileageHistory *Field[[]MileageEntry]  `json:"mileage_history,omitempty"`
	Provenance     *Field[ProvenanceFlags] `json:"provenance,omitempty"`

	// Sources lists the providers that actually responded on this run.
	Sources []Source `json:"sources,omitempty"`
	// Warnings are human-readable notes about unavailable data, for the
	// consuming listing flow to surface to the operator.
	Warnings []string `json:"warnings,omitempty"`
	// CacheID is the cache-store row written for this run, when any.
	CacheID   string    `json:"cache_id,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HasSource reports whether the given provider responded on this run.
func (r *VehicleRecord) HasSource(s Source) bool {
	for _, got := range r.Sources {
		if got == s {
			return true
		}
	}
	return false
}
