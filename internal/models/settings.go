package models

// Settings is the document-server connection the gateway stores per company.
type Settings struct {
	DocAddress  string `json:"doc_address"`
	DocSecret   string `json:"doc_secret"`
	DocHeader   string `json:"doc_header"`
	DemoEnabled bool   `json:"demo_enabled"`
}
