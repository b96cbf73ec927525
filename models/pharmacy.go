package models

// Pharmacy is one entry of a search result set. Instances live for the
// duration of a single search; the next search supersedes them wholesale.
//
// Address is mutable after the search returns: the background address
// enricher patches incomplete addresses in place on the same instances
// the caller already holds. Coordinates and DistanceKm are set once at
// normalization time and never recomputed.
type Pharmacy struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        string   `json:"phone,omitempty"`
	Website      string   `json:"website,omitempty"`
	Email        string   `json:"email,omitempty"`
	OpeningHours string   `json:"openingHours,omitempty"`
	IsGuard      bool     `json:"isGuard"`
	IsOpen24h    bool     `json:"isOpen24h"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	DistanceKm   *float64 `json:"distance,omitempty"`
}

// AddressUnavailable is the sentinel used when no address information at
// all can be derived from the source tags.
const AddressUnavailable = "Adresse non disponible"

// AddressUnknown is the sentinel the reverse geocoder returns when it
// cannot resolve a position. The enricher never writes it back.
const AddressUnknown = "Adresse inconnue"
