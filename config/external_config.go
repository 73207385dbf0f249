package config

// Configuration for the external registration services. Each section maps
// onto one client in the external package.

// DataCite DOI service parameters
type dataciteConfig struct {
	URL    string `json:"url" yaml:"url" validate:"required,url"`
	Prefix string `json:"prefix" yaml:"prefix" validate:"required"`
	User   string `json:"user" yaml:"user"`
	Key    string `json:"key" yaml:"key"`
	// Landing page base for minted DOIs.
	DiscoveryURL string `json:"discoveryUrl" yaml:"discoveryUrl" validate:"required,url"`
}

// persistent-identifier (PID) service parameters
type pidConfig struct {
	URL    string `json:"url" yaml:"url" validate:"required,url"`
	APIKey string `json:"apiKey" yaml:"apiKey"`
}

// Metax discovery-catalog service parameters
type metaxConfig struct {
	URL      string `json:"url" yaml:"url" validate:"required,url"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	// Identifier of the data catalog drafts are filed under.
	Catalog string `json:"catalog" yaml:"catalog" validate:"required"`
}

// REMS access-management service parameters
type remsConfig struct {
	URL    string `json:"url" yaml:"url" validate:"required,url"`
	UserId string `json:"userId" yaml:"userId" validate:"required"`
	Key    string `json:"key" yaml:"key"`
}

// ingestion-admin service parameters
type adminConfig struct {
	URL string `json:"url" yaml:"url" validate:"required,url"`
}
