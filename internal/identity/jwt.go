package identity

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// FromBearerToken builds a UserContext from a bearer JWT presented on the
// HTTP transport. OAuth flows themselves happen in an external identity
// provider; by the time a token reaches here it only needs claim
// extraction. When keyFunc is nil the token is parsed without signature
// verification, for deployments where a fronting proxy already verified it.
func FromBearerToken(authorization string, keyFunc jwt.Keyfunc) (*UserContext, error) {
	if !strings.HasPrefix(authorization, "Bearer ") {
		return nil, fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimPrefix(authorization, "Bearer ")

	var claims jwt.MapClaims
	var err error
	if keyFunc == nil {
		parser := jwt.NewParser()
		claims = jwt.MapClaims{}
		_, _, err = parser.ParseUnverified(raw, claims)
	} else {
		var token *jwt.Token
		token, err = jwt.ParseWithClaims(raw, jwt.MapClaims{}, keyFunc)
		if err == nil {
			claims = token.Claims.(jwt.MapClaims)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid bearer token: %w", err)
	}

	return fromClaims(claims), nil
}

func fromClaims(claims jwt.MapClaims) *UserContext {
	user := &UserContext{
		Provider: "jwt",
		Extra:    make(map[string]interface{}),
	}
	if sub, err := claims.GetSubject(); err == nil {
		user.UserID = sub
	}
	if role, ok := claims["role"].(string); ok {
		user.Role = role
	}
	if perms, ok := claims["permissions"].([]interface{}); ok {
		for _, p := range perms {
			if s, ok := p.(string); ok {
				user.Permissions = append(user.Permissions, s)
			}
		}
	}
	for k, v := range claims {
		switch k {
		case "sub", "role", "permissions", "exp", "iat", "nbf", "aud", "iss", "jti":
			continue
		}
		user.Extra[k] = v
	}
	return user
}
