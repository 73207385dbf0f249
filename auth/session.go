// Copyright (c) 2024 The Bioarchive Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bioarchive/mss/config"
)

// Session tokens are JWTs minted by the login front end after the OIDC
// exchange and verified here with the shared secret. A validated token
// yields the caller's identity; users and their projects are upserted
// lazily from that identity on each request.

// the identity carried by a validated session token
type Identity struct {
	// subject claim from the identity provider
	ExternalId string
	// display name of the user
	Name string
	// external identifiers of the projects the user belongs to
	Projects []string
}

// validates a session token and extracts the caller's identity
func ValidateSessionToken(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, InvalidTokenError{
				Message: "unexpected signing method " + token.Method.Alg(),
			}
		}
		return []byte(config.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, InvalidTokenError{Message: err.Error()}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, InvalidTokenError{Message: "unreadable claims"}
	}
	subject, _ := claims["sub"].(string)
	if subject == "" {
		return Identity{}, InvalidTokenError{Message: "missing subject claim"}
	}

	identity := Identity{
		ExternalId: subject,
		Name:       nameClaim(claims),
		Projects:   projectClaims(claims),
	}
	return identity, nil
}

func nameClaim(claims jwt.MapClaims) string {
	for _, key := range []string{"user_name", "name", "preferred_username"} {
		if name, ok := claims[key].(string); ok && name != "" {
			return name
		}
	}
	return ""
}

// The identity provider delivers project membership either as a list or as
// a single space-delimited string, depending on its release.
func projectClaims(claims jwt.MapClaims) []string {
	switch value := claims["projects"].(type) {
	case []any:
		projects := make([]string, 0, len(value))
		for _, entry := range value {
			if project, ok := entry.(string); ok && project != "" {
				projects = append(projects, project)
			}
		}
		return projects
	case string:
		if value == "" {
			return nil
		}
		return strings.Fields(value)
	}
	return nil
}
