package models

// Region is a coarse continental grouping derived from a country.
type Region string

// Regions used for map-level aggregation.
const (
	RegionAfrica       Region = "Africa"
	RegionAsia         Region = "Asia"
	RegionEurope       Region = "Europe"
	RegionNorthAmerica Region = "North America"
	RegionSouthAmerica Region = "South America"
	RegionOceania      Region = "Oceania"
	RegionAntarctica   Region = "Antarctica"
	RegionUnresolved   Region = "Unresolved"
)

// Regions lists every region value in display order.
var Regions = []Region{
	RegionAfrica,
	RegionAsia,
	RegionEurope,
	RegionNorthAmerica,
	RegionSouthAmerica,
	RegionOceania,
	RegionAntarctica,
	RegionUnresolved,
}

// Valid reports whether r is one of the enumerated regions.
func (r Region) Valid() bool {
	for _, known := range Regions {
		if r == known {
			return true
		}
	}

	return false
}

// Confidence grades a location resolution. Higher values are better.
type Confidence int

// Resolution confidence levels.
const (
	ConfidenceUnresolved Confidence = iota
	ConfidenceHeuristic
	ConfidenceExact
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceExact:
		return "Exact"
	case ConfidenceHeuristic:
		return "Heuristic"
	default:
		return "Unresolved"
	}
}

// Status is the outcome carried by an article. Higher values are worse.
type Status string

// Article statuses.
const (
	StatusOk        Status = "Ok"
	StatusAmbiguous Status = "Ambiguous"
	StatusNotFound  Status = "NotFound"
	StatusError     Status = "Error"
)

// Statuses lists every status value from best to worst.
var Statuses = []Status{StatusOk, StatusAmbiguous, StatusNotFound, StatusError}

func (s Status) severity() int {
	for i, known := range Statuses {
		if s == known {
			return i
		}
	}

	return -1
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	return s.severity() >= 0
}

// Worst returns the most severe of the given statuses, or StatusOk when none are given.
func Worst(statuses ...Status) Status {
	worst := StatusOk
	for _, s := range statuses {
		if s.severity() > worst.severity() {
			worst = s
		}
	}

	return worst
}
