package preferences

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// CookieName is the cookie holding the signed client id.
const CookieName = "swsi-client"

// ClientIdentifier tells clients apart by a signed cookie holding a random id.
type ClientIdentifier struct {
	codec *securecookie.SecureCookie
	// Secure marks issued cookies as HTTPS-only.
	Secure bool
}

// NewClientIdentifier creates an identifier signing cookies with hashKey.
// The key should be 32 or 64 random bytes and stay stable across restarts,
// otherwise clients lose their preferences. A random key is generated if hashKey is empty.
func NewClientIdentifier(hashKey []byte) *ClientIdentifier {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	codec := securecookie.New(hashKey, nil)
	// ten years, preferences are meant to persist
	codec.MaxAge(10 * 365 * 24 * 60 * 60)
	return &ClientIdentifier{codec: codec}
}

// Identify returns the client id of the request.
// A client without a valid cookie gets a new id, and the cookie is set on w.
func (c *ClientIdentifier) Identify(w http.ResponseWriter, r *http.Request) string {
	if id, ok := c.Lookup(r); ok {
		return id
	}
	id := uuid.NewString()
	encoded, err := c.codec.Encode(CookieName, id)
	if err != nil {
		// an id that cannot be stored still works for this request
		return id
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   10 * 365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Lookup returns the client id of the request without issuing a new one.
func (c *ClientIdentifier) Lookup(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	var id string
	if err := c.codec.Decode(CookieName, cookie.Value, &id); err != nil || id == "" {
		return "", false
	}
	return id, true
}
