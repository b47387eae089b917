package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims are the claims the gateway reads from an ID token.
type IdentityClaims struct {
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Subject           string   `json:"sub"`
	Groups            []string `json:"groups"`
}

// PeekClaims decodes a JWT payload without signature verification. Used
// when no OIDC issuer is configured for full verification; the token was
// already accepted by the provider's token endpoint in that case.
func PeekClaims(rawToken string) (*IdentityClaims, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims format")
	}
	return claimsFromMap(map[string]interface{}(mapClaims)), nil
}

func claimsFromMap(m map[string]interface{}) *IdentityClaims {
	c := &IdentityClaims{}
	if v, ok := m["name"].(string); ok {
		c.Name = v
	}
	if v, ok := m["preferred_username"].(string); ok {
		c.PreferredUsername = v
	}
	if v, ok := m["sub"].(string); ok {
		c.Subject = v
	}
	if groups, ok := m["groups"].([]interface{}); ok {
		for _, g := range groups {
			if id, ok := g.(string); ok {
				c.Groups = append(c.Groups, id)
			}
		}
	}
	return c
}
