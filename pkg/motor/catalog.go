package motor

import (
	"fmt"
	"sort"
	"strings"
)

// catalog holds the spec-sheet constants of commonly used motors.
// All values are at the 12 V nominal bus.
var catalog = map[string]Spec{
	"krakenx60": {Name: "krakenx60", FreeSpeedRPM: 6000, StallTorque: 7.09, StallCurrent: 366, FreeCurrent: 2.0, NominalVoltage: 12},
	"neo":       {Name: "neo", FreeSpeedRPM: 5676, StallTorque: 2.6, StallCurrent: 105, FreeCurrent: 1.8, NominalVoltage: 12},
	"neo550":    {Name: "neo550", FreeSpeedRPM: 11000, StallTorque: 0.97, StallCurrent: 100, FreeCurrent: 1.4, NominalVoltage: 12},
	"neovortex": {Name: "neovortex", FreeSpeedRPM: 6784, StallTorque: 3.6, StallCurrent: 211, FreeCurrent: 1.2, NominalVoltage: 12},
	"falcon500": {Name: "falcon500", FreeSpeedRPM: 6380, StallTorque: 4.69, StallCurrent: 257, FreeCurrent: 1.5, NominalVoltage: 12},
	"cim":       {Name: "cim", FreeSpeedRPM: 5330, StallTorque: 2.41, StallCurrent: 131, FreeCurrent: 2.7, NominalVoltage: 12},
	"minicim":   {Name: "minicim", FreeSpeedRPM: 5840, StallTorque: 1.41, StallCurrent: 89, FreeCurrent: 3.0, NominalVoltage: 12},
	"bag":       {Name: "bag", FreeSpeedRPM: 13180, StallTorque: 0.43, StallCurrent: 53, FreeCurrent: 1.8, NominalVoltage: 12},
	"venom":     {Name: "venom", FreeSpeedRPM: 6000, StallTorque: 2.4, StallCurrent: 120, FreeCurrent: 2.0, NominalVoltage: 12},
}

// LookupSpec returns the catalog spec for a motor name.
// Names are case-insensitive.
func LookupSpec(name string) (Spec, error) {
	spec, ok := catalog[strings.ToLower(name)]
	if !ok {
		return Spec{}, fmt.Errorf("%w: unknown motor %q (known: %s)",
			ErrBadSpec, name, strings.Join(CatalogNames(), ", "))
	}
	return spec, nil
}

// CatalogNames returns the sorted names of all cataloged motors.
func CatalogNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
