package models

type Venue struct {
	ID           int64    `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Location     string   `json:"location" yaml:"location"`
	Address      string   `json:"address,omitempty" yaml:"address"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	PricePerHour int64    `json:"price_per_hour" yaml:"price_per_hour"`
	Sports       []string `json:"sports" yaml:"sports"`
	Amenities    []string `json:"amenities,omitempty" yaml:"amenities"`
	Rating       float64  `json:"rating,omitempty" yaml:"rating"`
	ReviewCount  int64    `json:"review_count,omitempty" yaml:"review_count"`
	IsActive     bool     `json:"is_active" yaml:"is_active"`
	SortOrder    int64    `json:"sort_order,omitempty" yaml:"sort_order"`
}

// SupportsSport reports whether the venue declares the given sport.
func (v *Venue) SupportsSport(sport string) bool {
	for _, s := range v.Sports {
		if s == sport {
			return true
		}
	}
	return false
}
