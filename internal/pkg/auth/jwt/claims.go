package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims carried by ChatFlow identity tokens.
// It includes the standard claims required by the JWT specification plus the
// custom claims needed to identify a user across the HTTP and WebSocket surfaces.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the stable opaque identifier of the user account.
	ID string `json:"id"`

	// Username is the display name at the time the token was issued.
	// Display names are not unique; authorization decisions use ID only.
	Username string `json:"username"`
}
