package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityKey = "identity"

// Identity is the authenticated principal attached to a request or socket.
type Identity struct {
	UserID string
	Name   string
	Valid  bool
}

// Verifier validates HMAC-signed bearer tokens carrying uid/name claims. The
// websocket handshake and the REST surface share one verifier so a token is a
// token, regardless of transport.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign mints a token for the user. Used by tests and dev tooling; production
// tokens come from the auth service.
func (v *Verifier) Sign(userID, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"uid":  userID,
		"name": name,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses the token and extracts the identity. Anything invalid comes
// back with Valid=false; the caller decides between a 401 and a refused
// handshake.
func (v *Verifier) Verify(token string) Identity {
	if token == "" {
		return Identity{}
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return Identity{}
	}
	name, _ := claims["name"].(string)
	return Identity{UserID: uid, Name: name, Valid: true}
}

// BearerToken pulls the token from the Authorization header or, for websocket
// handshakes where custom headers are awkward, the token query parameter.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Auth is the gin middleware guarding the REST surface.
func (v *Verifier) Auth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := v.Verify(BearerToken(ctx.Request))
		if !id.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}
		ctx.Set(identityKey, id)
		ctx.Next()
	}
}

// From returns the identity set by Auth, zero when the route is unguarded.
func From(ctx *gin.Context) Identity {
	if v, ok := ctx.Get(identityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{}
}
