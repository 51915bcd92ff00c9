package authgate

// Scheme names registered by DefaultSchemes.
const (
	SchemeDefault            = "default"
	SchemeBearerToken        = "bearer-token"
	SchemeBearerRefreshToken = "bearer-refresh-token"
	SchemeCookieToken        = "cookie-token"
	SchemeCookieRefreshToken = "cookie-refresh-token"
)

// Policy names registered by DefaultPolicies.
const (
	PolicyBearer        = "Bearer"
	PolicyBearerRefresh = "BearerRefresh"
	PolicyCookie        = "Cookie"
	PolicyCookieRefresh = "CookieRefresh"

	PolicyBearerAdmin        = "BearerAdmin"
	PolicyBearerUser         = "BearerUser"
	PolicyCookieAdmin        = "CookieAdmin"
	PolicyCookieUser         = "CookieUser"
	PolicyCookieRefreshAdmin = "CookieRefreshAdmin"
	PolicyCookieRefreshUser  = "CookieRefreshUser"

	// PolicySession accepts either transport for the access token, so a
	// browser session and an API client pass the same role rules.
	PolicySession = "Session"
)

// Role values carried in token claims.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultSchemes returns the scheme set of the standard deployment:
// bearer-header and cookie transports, each in an access-audience and a
// refresh-audience variant. The default scheme is the bearer header with
// no issuer/audience constraints.
func DefaultSchemes(cfg Config) []Scheme {
	issuers := []string{cfg.JWT.Issuer}
	access := []string{cfg.JWT.Audience}
	refresh := []string{cfg.JWT.RefreshAudience}

	return []Scheme{
		{
			Name:    SchemeDefault,
			Extract: BearerExtractor,
		},
		{
			Name:             SchemeBearerToken,
			Extract:          BearerExtractor,
			ValidateIssuer:   true,
			ValidateAudience: true,
			Issuers:          issuers,
			Audiences:        access,
		},
		{
			Name:             SchemeBearerRefreshToken,
			Extract:          BearerExtractor,
			ValidateIssuer:   true,
			ValidateAudience: true,
			Issuers:          issuers,
			Audiences:        refresh,
		},
		{
			Name:             SchemeCookieToken,
			Extract:          CookieExtractor(cfg.Cookies.AccessName),
			ValidateIssuer:   true,
			ValidateAudience: true,
			Issuers:          issuers,
			Audiences:        access,
		},
		{
			Name:             SchemeCookieRefreshToken,
			Extract:          CookieExtractor(cfg.Cookies.RefreshName),
			ValidateIssuer:   true,
			ValidateAudience: true,
			Issuers:          issuers,
			Audiences:        refresh,
		},
	}
}

// DefaultPolicies returns the policy set of the standard deployment: one
// transport-only policy per scheme plus role-restricted variants.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: PolicyBearer, Schemes: []string{SchemeBearerToken}},
		{Name: PolicyBearerRefresh, Schemes: []string{SchemeBearerRefreshToken}},
		{Name: PolicyCookie, Schemes: []string{SchemeCookieToken}},
		{Name: PolicyCookieRefresh, Schemes: []string{SchemeCookieRefreshToken}},

		{Name: PolicyBearerAdmin, Schemes: []string{SchemeBearerToken}, Roles: []string{RoleAdmin}},
		{Name: PolicyBearerUser, Schemes: []string{SchemeBearerToken}, Roles: []string{RoleUser, RoleAdmin}},
		{Name: PolicyCookieAdmin, Schemes: []string{SchemeCookieToken}, Roles: []string{RoleAdmin}},
		{Name: PolicyCookieUser, Schemes: []string{SchemeCookieToken}, Roles: []string{RoleUser, RoleAdmin}},
		{Name: PolicyCookieRefreshAdmin, Schemes: []string{SchemeCookieRefreshToken}, Roles: []string{RoleAdmin}},
		{Name: PolicyCookieRefreshUser, Schemes: []string{SchemeCookieRefreshToken}, Roles: []string{RoleUser, RoleAdmin}},

		{Name: PolicySession, Schemes: []string{SchemeCookieToken, SchemeBearerToken}},
	}
}
