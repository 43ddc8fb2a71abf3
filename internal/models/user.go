package models

// MeResponse is the gateway's answer to GET /api/me: the acting user plus a
// short-lived CRM access token for direct CRM API calls.
type MeResponse struct {
	Response struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	} `json:"response"`
}

// CRMLanguage is the user's locale as reported by the CRM.
type CRMLanguage struct {
	LanguageCode string `json:"language_code"`
	CountryCode  string `json:"country_code"`
}

// CRMUser is the subset of GET /api/v1/users/me the connector reads.
type CRMUser struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Language CRMLanguage `json:"language"`
}

// CRMUserResponse wraps CRMUser in the CRM's data envelope.
type CRMUserResponse struct {
	Success bool    `json:"success"`
	Data    CRMUser `json:"data"`
}

// Locale returns the user's locale as a BCP 47-ish tag, e.g. "en-US".
func (u CRMUser) Locale() string {
	if u.Language.LanguageCode == "" {
		return ""
	}
	if u.Language.CountryCode == "" {
		return u.Language.LanguageCode
	}
	return u.Language.LanguageCode + "-" + u.Language.CountryCode
}
