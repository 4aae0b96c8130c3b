// Package auth identifies the caller of a request.
//
// Two credential kinds are accepted as bearer tokens:
//
//   - HS256 JWTs issued by the application's login service. The subject is
//     the user id and the email claim is used to match invitations.
//   - Service tokens for automation (fam_<base64url>). Only their SHA256
//     hash is configured; the plaintext is shown once when generated.
//
// Authentication answers "who is calling" only. Whether that caller may act
// on a patient or a family is decided by pkg/authz.
//
//	verifier := auth.NewJWTVerifier(auth.JWTConfig{Secret: secret, Issuer: "familyaccess"})
//	authn := auth.Chain(serviceTokens, verifier)
//	identity, err := authn.Authenticate(ctx, bearer)
package auth
