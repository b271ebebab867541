package ukvd

import "time"

// VehicleData is the core specification payload from the VehicleData
// datapackage. Field names follow the provider's schema.
type VehicleData struct {
	VRM               string  `json:"Vrm"`
	Make              string  `json:"Make"`
	Model             string  `json:"Model"`
	Variant           string  `json:"Variant"`
	Colour            string  `json:"Colour"`
	FuelType          string  `json:"FuelType"`
	Transmission      string  `json:"Transmission"`
	BodyStyle         string  `json:"BodyStyle"`
	EngineCapacityCC  int     `json:"EngineCapacityCc"`
	NumberOfDoors     int     `json:"NumberOfDoors"`
	NumberOfSeats     int     `json:"NumberOfSeats"`
	CO2GKM            int     `json:"Co2Gkm"`
	YearOfManufacture int     `json:"YearOfManufacture"`
	TwelveMonthVED    int     `json:"TwelveMonthVed"`
	InsuranceGroup    string  `json:"InsuranceGroup"`
	UrbanMPG          float64 `json:"UrbanMpg"`
	ExtraUrbanMPG     float64 `json:"ExtraUrbanMpg"`
	CombinedMPG       float64 `json:"CombinedMpg"`
	// LastRecordedMileage is 0 when the provider holds no reading.
	LastRecordedMileage int `json:"LastRecordedMileage"`
}

// MOTTest is a single test from the MotHistory datapackage.
type MOTTest struct {
	TestDate   time.Time  `json:"TestDate"`
	ExpiryDate *time.Time `json:"ExpiryDate,omitempty"`
	TestResult string     `json:"TestResult"`
	Odometer   int        `json:"OdometerReading"`
	Advisories []string   `json:"AdvisoryNoticeList,omitempty"`
	Failures   []string   `json:"FailureReasonList,omitempty"`
}

// MileageRecord is one reading from the provenance check's mileage list.
type MileageRecord struct {
	DateOfInformation time.Time `json:"DateOfInformation"`
	Mileage           int       `json:"Mileage"`
	SourceOfRecord    string    `json:"SourceOfRecord,omitempty"`
}

// ProvenanceCheck is the VdiCheckFull payload: ownership, write-off and
// finance markers plus the recorded mileage list.
type ProvenanceCheck struct {
	Stolen             bool            `json:"Stolen"`
	WrittenOff         bool            `json:"WrittenOff"`
	OutstandingFinance bool            `json:"OutstandingFinance"`
	Imported           bool            `json:"Imported"`
	Scrapped           bool            `json:"Scrapped"`
	PreviousKeepers    int             `json:"PreviousKeeperCount"`
	MileageRecords     []MileageRecord `json:"MileageRecordList,omitempty"`
}

// Snapshot aggregates the three datapackages for one VRM. Provenance and
// MOTTests are nil when their sub-calls failed; Warnings carries one
// human-readable entry per failed sub-resource.
type Snapshot struct {
	VRM        string
	Vehicle    *VehicleData
	Provenance *ProvenanceCheck
	MOTTests   []MOTTest
	Warnings   []string
}

// LatestMileage returns the most recent reading known to the provider,
// preferring the explicit mileage record list, then the latest MOT
// odometer, then the core payload's last recorded figure. Returns 0 when
// nothing is known.
func (s *Snapshot) LatestMileage() int {
	if s == nil {
		return 0
	}
	var best int
	var bestAt time.Time
	if s.Provenance != nil {
		for _, rec := range s.Provenance.MileageRecords {
			if rec.DateOfInformation.After(bestAt) {
				best, bestAt = rec.Mileage, rec.DateOfInformation
			}
		}
	}
	for _, test := range s.MOTTests {
		if test.TestDate.After(bestAt) {
			best, bestAt = test.Odometer, test.TestDate
		}
	}
	if best > 0 {
		return best
	}
	if s.Vehicle != nil {
		return s.Vehicle.LastRecordedMileage
	}
	return 0
}
