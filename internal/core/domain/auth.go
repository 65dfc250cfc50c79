package domain

// TokenClaims is the content of a signed API token
type TokenClaims struct {
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Principal is the caller an API request was authenticated as
type Principal struct {
	Subject string `json:"subject"`
	// Method is "token" for signed tokens and "api_key" for the static key
	Method string `json:"method"`
}
