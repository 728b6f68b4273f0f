package authsdk

import "github.com/aussiebroadwan/saccoesb/pkg/jwtx"

// Credentials are posted to the authenticate endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPair is returned by both the authenticate and refresh endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// errorBody is the structured error the ESB API returns when it can.
type errorBody struct {
	Message  string `json:"message"`
	DateTime string `json:"dateTime"`
}

// User is the signed-in operator, derived from access-token claims and
// persisted under storex.KeyCurrentUser.
type User struct {
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName,omitempty"`
	Email       string   `json:"email,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// AuthResult is what a successful login yields.
type AuthResult struct {
	User   *User
	Tokens TokenPair
}

// userFromClaims builds the User for a fresh token. The login name is used
// when the token carries no subject.
func userFromClaims(claims *jwtx.Claims, username string) *User {
	u := &User{
		Username:    claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		Permissions: append([]string(nil), claims.Permissions...),
	}
	if u.Username == "" {
		u.Username = username
	}
	return u
}
