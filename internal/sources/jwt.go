package sources

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

type jwtSubscribedAPI struct {
	Context string `json:"context"`
	Name    string `json:"name"`
}

type jwtClaims struct {
	SubscribedAPIs []jwtSubscribedAPI `json:"subscribedAPIs"`
}

// decodeJWTClaims parses the unverified payload of a JWT. Met Office
// DataHub keys are JWTs whose claims list the subscribed API contexts,
// which makes 403 responses explainable.
func decodeJWTClaims(token string) *jwtClaims {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil
	}
	var claims jwtClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil
	}
	return &claims
}

// tokenHasAPIContext reports whether the token claims a subscription
// matching the context fragment, e.g. "/atmospheric-models/".
func tokenHasAPIContext(token, fragment string) bool {
	claims := decodeJWTClaims(token)
	if claims == nil {
		return false
	}
	frag := strings.ToLower(fragment)
	for _, api := range claims.SubscribedAPIs {
		if strings.Contains(strings.ToLower(api.Context), frag) ||
			strings.Contains(strings.ToLower(api.Name), frag) {
			return true
		}
	}
	return false
}

// subscriptionHint explains a 403 from the site-specific endpoint when
// the token is subscribed to other DataHub products instead.
func subscriptionHint(token string) string {
	claims := decodeJWTClaims(token)
	if claims == nil || len(claims.SubscribedAPIs) == 0 {
		return ""
	}

	var contexts, names []string
	seen := make(map[string]bool)
	for _, api := range claims.SubscribedAPIs {
		if strings.Contains(api.Context, "/sitespecific/") {
			return ""
		}
		if api.Context != "" && !seen["c"+api.Context] {
			seen["c"+api.Context] = true
			contexts = append(contexts, api.Context)
		}
		if api.Name != "" && !seen["n"+api.Name] {
			seen["n"+api.Name] = true
			names = append(names, api.Name)
		}
	}

	if len(names) > 0 {
		return "token subscribed to " + strings.Join(names, ", ") + ", not SiteSpecificForecast"
	}
	if len(contexts) > 0 {
		return "token subscribed to " + strings.Join(contexts, ", ") + ", not /sitespecific/v0"
	}
	return ""
}
