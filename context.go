/*
Copyright © 2021 the EOCalc authors.
This file is part of EOCalc.

EOCalc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EOCalc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EOCalc.  If not, see <http://www.gnu.org/licenses/>.
*/

package eocalc

import (
	"fmt"
	"strings"
)

// Pollutant is an air pollutant that emissions can be calculated for.
// The zero value is not a valid pollutant.
type Pollutant int

// These are the pollutants considered by EOCalc.
const (
	NO2 Pollutant = iota + 1
	SO2
	NH3
	PM2_5
)

// Pollutants returns all valid pollutants.
func Pollutants() []Pollutant {
	return []Pollutant{NO2, SO2, NH3, PM2_5}
}

var pollutantNames = map[Pollutant]string{
	NO2:   "NO2",
	SO2:   "SO2",
	NH3:   "NH3",
	PM2_5: "PM2_5",
}

// molar masses [g/mol]
var molarMasses = map[Pollutant]float64{
	NO2: 46.01,
	SO2: 64.07,
	NH3: 17.03,
}

func (p Pollutant) String() string {
	if s, ok := pollutantNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Pollutant(%d)", int(p))
}

// Valid returns whether p is one of the defined pollutants.
func (p Pollutant) Valid() bool {
	_, ok := pollutantNames[p]
	return ok
}

// MolarMass returns the mass of one mole of p in grams. ok is false
// for pollutants without a defined molecular formula, such as PM2_5.
func (p Pollutant) MolarMass() (grams float64, ok bool) {
	grams, ok = molarMasses[p]
	return
}

// ParsePollutant returns the pollutant with the given name. The match
// is case insensitive and "PM2.5" is accepted as an alias for PM2_5.
func ParsePollutant(name string) (Pollutant, error) {
	n := strings.ToUpper(strings.Replace(strings.TrimSpace(name), ".", "_", -1))
	for p, s := range pollutantNames {
		if s == n {
			return p, nil
		}
	}
	return 0, fmt.Errorf("eocalc: unknown pollutant %q", name)
}

// Sector is a gridded NFR (GNFR) emission source category as defined
// for reporting under the UNECE/LRTAP convention.
type Sector int

// The GNFR sectors, in reporting order. Totals is not a GNFR sector; it
// labels the row that holds the sum over all sectors.
const (
	PublicPower Sector = iota
	Industry
	OtherStationaryComb
	Fugitive
	Solvents
	RoadTransport
	Shipping
	Aviation
	Offroad
	Waste
	AgriLivestock
	AgriOther
	Other
	Natural
	AviCruise
	IntShipping
	Memo
	Totals
)

// NumSectors is the number of GNFR sectors, excluding Totals.
const NumSectors = int(Totals)

var sectorNames = [...]string{
	"A_PublicPower",
	"B_Industry",
	"C_OtherStationaryComb",
	"D_Fugitive",
	"E_Solvents",
	"F_RoadTransport",
	"G_Shipping",
	"H_Aviation",
	"I_Offroad",
	"J_Waste",
	"K_AgriLivestock",
	"L_AgriOther",
	"M_Other",
	"N_Natural",
	"O_AviCruise",
	"P_IntShipping",
	"z_Memo",
	"Totals",
}

// Sectors returns the GNFR sectors in reporting order.
func Sectors() []Sector {
	o := make([]Sector, NumSectors)
	for i := range o {
		o[i] = Sector(i)
	}
	return o
}

func (s Sector) String() string {
	if s < 0 || int(s) >= len(sectorNames) {
		return fmt.Sprintf("Sector(%d)", int(s))
	}
	return sectorNames[s]
}
