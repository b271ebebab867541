package enrich

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rossycoder/carcatlog-backend/internal/model"
	"github.com/rossycoder/carcatlog-backend/pkg/caphpi"
	"github.com/rossycoder/carcatlog-backend/pkg/ukvd"
)

var titleCaser = cases.Title(language.BritishEnglish)

// Merge combines at most one specification snapshot and at most one
// valuation payload into a canonical source-tagged record. It is pure
// and deterministic: identical inputs produce identical output, and for
// every field defined by both providers the specification provider's
// value wins. Both inputs nil yields a structurally valid, entirely
// absent record; the orchestrator decides what that means.
func Merge(plate string, spec *ukvd.Snapshot, val *caphpi.Valuation, policy Policy) *model.VehicleRecord {
	rec := &model.VehicleRecord{Plate: plate}

	if spec != nil {
		rec.Sources = append(rec.Sources, model.SourceUKVD)
		applySpec(rec, spec, policy)
	}
	if val != nil {
		rec.Sources = append(rec.Sources, model.SourceCapHPI)
		applyValuation(rec, val)
	}

	if policy.EVZeroEmissions {
		applyEVRule(rec)
	}
	return rec
}

func applySpec(rec *model.VehicleRecord, spec *ukvd.Snapshot, policy Policy) {
	if v := spec.Vehicle; v != nil {
		rec.Make = tagStr(v.Make, model.SourceUKVD, false, policy)
		rec.Model = tagStr(v.Model, model.SourceUKVD, false, policy)
		rec.Variant = tagStr(v.Variant, model.SourceUKVD, false, policy)
		rec.Colour = tagStr(v.Colour, model.SourceUKVD, true, policy)
		rec.FuelType = tagStr(v.FuelType, model.SourceUKVD, true, policy)
		rec.Transmission = tagStr(v.Transmission, model.SourceUKVD, true, policy)
		rec.BodyType = tagStr(v.BodyStyle, model.SourceUKVD, true, policy)
		rec.InsuranceGroup = tagStr(v.InsuranceGroup, model.SourceUKVD, false, policy)
		rec.EngineCC = tagInt(v.EngineCapacityCC, model.SourceUKVD)
		rec.Doors = tagInt(v.NumberOfDoors, model.SourceUKVD)
		rec.Seats = tagInt(v.NumberOfSeats, model.SourceUKVD)
		rec.CO2GKM = tagInt(v.CO2GKM, model.SourceUKVD)
		rec.AnnualTaxGBP = tagInt(v.TwelveMonthVED, model.SourceUKVD)
		rec.YearOfManufacture = tagInt(v.YearOfManufacture, model.SourceUKVD)

		if v.UrbanMPG > 0 || v.ExtraUrbanMPG > 0 || v.CombinedMPG > 0 {
			rec.FuelEconomy = model.Tag(model.FuelEconomy{
				UrbanMPG:      v.UrbanMPG,
				ExtraUrbanMPG: v.ExtraUrbanMPG,
				CombinedMPG:   v.CombinedMPG,
			}, model.SourceUKVD)
		}
	}

	if len(spec.MOTTests) > 0 {
		tests := make([]model.MOTTest, 0, len(spec.MOTTests))
		for _, mt := range spec.MOTTests {
			tests = append(tests, model.MOTTest{
				TestDate:   mt.TestDate,
				ExpiryDate: mt.ExpiryDate,
				Result:     mt.TestResult,
				Odometer:   mt.Odometer,
				Advisories: mt.Advisories,
				Failures:   mt.Failures,
			})
		}
		rec.MOTTests = model.Tag(tests, model.SourceUKVD)
	}

	if p := spec.Provenance; p != nil {
		rec.Provenance = model.Tag(model.ProvenanceFlags{
			Stolen:             p.Stolen,
			WrittenOff:         p.WrittenOff,
			OutstandingFinance: p.OutstandingFinance,
			Imported:           p.Imported,
			Scrapped:           p.Scrapped,
			PreviousKeepers:    p.PreviousKeepers,
		}, model.SourceUKVD)

		if len(p.MileageRecords) > 0 {
			entries := make([]model.MileageEntry, 0, len(p.MileageRecords))
			for _, mr := range p.MileageRecords {
				entries = append(entries, model.MileageEntry{
					Date:    mr.DateOfInformation,
					Mileage: mr.Mileage,
					Origin:  mr.SourceOfRecord,
				})
			}
			rec.MileageHistory = model.Tag(entries, model.SourceUKVD)
		}
	}
}

// applyValuation fills valuation figures and backfills identity fields
// only where the specification provider left them absent.
func applyValuation(rec *model.VehicleRecord, val *caphpi.Valuation) {
	rec.Valuation = model.Tag(model.Valuation{
		PrivateGBP: val.PrivateGBP,
		RetailGBP:  val.RetailGBP,
		TradeGBP:   val.TradeGBP,
		Confidence: val.Confidence,
	}, model.SourceCapHPI)

	if rec.Make == nil && strings.TrimSpace(val.Make) != "" {
		rec.Make = model.Tag(strings.TrimSpace(val.Make), model.SourceCapHPI)
	}
	if rec.Model == nil && strings.TrimSpace(val.Model) != "" {
		rec.Model = model.Tag(strings.TrimSpace(val.Model), model.SourceCapHPI)
	}
	if rec.Variant == nil && strings.TrimSpace(val.Variant) != "" {
		rec.Variant = model.Tag(strings.TrimSpace(val.Variant), model.SourceCapHPI)
	}
}

// applyEVRule is the named zero-emissions fallback: electric vehicles
// with no reported CO2 or tax figure get explicit zeros tagged as
// derived values.
func applyEVRule(rec *model.VehicleRecord) {
	if rec.FuelType == nil || !strings.EqualFold(rec.FuelType.Value, "electric") {
		return
	}
	if rec.CO2GKM == nil {
		rec.CO2GKM = model.Tag(0, model.SourceDerived)
	}
	if rec.AnnualTaxGBP == nil {
		rec.AnnualTaxGBP = model.Tag(0, model.SourceDerived)
	}
}

// tagStr returns nil for blank values. titleCase applies only to
// closed-vocabulary fields when the policy enables case normalization;
// free-form identity fields (make, model) pass through untouched so
// "BMW" is not mangled.
func tagStr(v string, src model.Source, titleCase bool, policy Policy) *model.Field[string] {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if titleCase && policy.NormalizeCase {
		v = titleCaser.String(strings.ToLower(v))
	}
	return model.Tag(v, src)
}

// tagInt treats zero as absent. A genuine provider-reported zero (an
// electric vehicle's CO2) is restored by the EV rule with a derived tag.
func tagInt(v int, src model.Source) *model.Field[int] {
	if v == 0 {
		return nil
	}
	return model.Tag(v, src)
}
