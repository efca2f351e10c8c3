package security

import (
	"fmt"
	"time"

	errs "OpsFlow/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing and TTL.
type Options struct {
	Secret []byte        // HMAC secret (from env in production)
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // token validity (default 2h)
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

// TokenVerifier is the auth capability the realtime gateway consumes:
// it maps a raw token to a user id or fails.
type TokenVerifier interface {
	VerifyToken(token string) (userID string, err error)
}

type jwtVerifier struct {
	opts Options
}

func NewJWTVerifier(opts Options) TokenVerifier {
	if opts.Alg == "" {
		opts.Alg = "HS256"
	}
	return &jwtVerifier{opts: opts}
}

func (v *jwtVerifier) VerifyToken(token string) (string, error) {
	if token == "" {
		return "", errs.ErrAuthentication.WrapMsg("no authentication token provided")
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.opts.Secret, nil
	})
	if err != nil {
		return "", errs.ErrAuthentication.WrapMsg("parse token", "err", err)
	}
	if !parsed.Valid {
		return "", errs.ErrAuthentication.WrapMsg("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return "", errs.ErrAuthentication.WrapMsg("unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errs.ErrAuthentication.WrapMsg("token missing sub")
	}
	return sub, nil
}

// Generate signs a token for userID. Used by the login surface and tests.
func Generate(opts Options, userID string) (string, time.Time, error) {
	method := jwtlib.GetSigningMethod(opts.Alg)
	if method == nil {
		method = jwtlib.SigningMethodHS256
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.TTL)
	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	tok := jwtlib.NewWithClaims(method, claims)
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
