package enrich

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Policy holds the named business rules applied during the merge. Rules
// live here, not buried in merge code, so operators can see and disable
// them.
type Policy struct {
	// EVZeroEmissions fills in zero CO2 and zero annual tax for electric
	// vehicles when neither provider supplied a figure. The filled
	// fields are tagged with the derived source, not a provider.
	EVZeroEmissions bool `yaml:"ev_zero_emissions"`

	// NormalizeCase title-cases closed-vocabulary text fields (colour,
	// fuel type, transmission, body type) that providers return in
	// inconsistent casing.
	NormalizeCase bool `yaml:"normalize_case"`

	// DefaultMileage is used for valuation when no mileage is supplied
	// and the specification provider holds no reading.
	DefaultMileage int `yaml:"default_mileage"`
}

// DefaultPolicy returns the rules compiled into the binary.
func DefaultPolicy() Policy {
	return Policy{
		EVZeroEmissions: true,
		NormalizeCase:   true,
		DefaultMileage:  60000,
	}
}

// LoadPolicy reads a merge policy from a YAML file. The file has a
// top-level "merge" key; missing keys keep their default values.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "enrich: read policy %s", path)
	}

	wrapper := struct {
		Merge Policy `yaml:"merge"`
	}{Merge: DefaultPolicy()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Policy{}, eris.Wrap(err, "enrich: parse policy")
	}

	if wrapper.Merge.DefaultMileage <= 0 {
		wrapper.Merge.DefaultMileage = DefaultPolicy().DefaultMileage
	}
	return wrapper.Merge, nil
}
