package model

// GeoLocation is an approximate location derived from an IP address. All
// fields are optional; the zero value is the canonical "not found" result.
type GeoLocation struct {
	Country        string  `json:"country,omitempty"`
	City           string  `json:"city,omitempty"`
	Subdivision    string  `json:"subdivision,omitempty"`
	Postal         string  `json:"postal,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	Timezone       string  `json:"timezone,omitempty"`
	AccuracyRadius uint16  `json:"accuracy_radius,omitempty"`
}

// IsZero reports whether no location data was found.
func (g GeoLocation) IsZero() bool {
	return g == GeoLocation{}
}

// RequestMeta carries the transport-level signals used to extract a client IP
// without tying the lookup engine to any HTTP framework.
type RequestMeta struct {
	Headers    map[string]string
	RemoteAddr string
	PayloadIP  string
}
