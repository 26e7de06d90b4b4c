package models

// Sender is the explicit caller identity passed to every pipeline
// operation. Identity values are denormalized onto messages at send time
// and never updated retroactively.
type Sender struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	PhotoURL    *string `json:"photo_url,omitempty"`
}

// Coordinates is an acquired geolocation fix. Acquisition itself happens
// outside the pipeline.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
