package model

// PixelConfig holds per-domain delivery credentials. Only active configs are
// eligible for resolution.
type PixelConfig struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	PixelID     string `json:"pixel_id"`
	AccessToken string `json:"-"`
	TestCode    string `json:"test_code,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// Credentials is the resolved credential set used for one delivery.
type Credentials struct {
	PixelID     string
	AccessToken string
	TestCode    string
}
