package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/snippetlab/collab-service/internal/domain"

	"github.com/golang-jwt/jwt"
	"github.com/jellydator/ttlcache/v3"
)

// Verifier валидирует access-токены, выпущенные auth-сервисом платформы
// (SigningMethodRS256; общая пара ключей, у relay только публичный).
// Успешные проверки кэшируются на короткий TTL: при reconnect-штормах один
// и тот же токен не парсится повторно.
type Verifier struct {
	public    *rsa.PublicKey
	issuer    string
	audience  string
	clockSkew time.Duration

	cacheTTL time.Duration
	cache    *ttlcache.Cache[string, domain.Identity]
}

type AccessClaims struct {
	jwt.StandardClaims
	Username string `json:"username"`
}

func NewVerifier(public *rsa.PublicKey, issuer, audience string, clockSkew, cacheTTL time.Duration) *Verifier {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	c := ttlcache.New[string, domain.Identity](
		ttlcache.WithTTL[string, domain.Identity](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, domain.Identity](),
	)
	go c.Start()

	return &Verifier{
		public:    public,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		cacheTTL:  cacheTTL,
		cache:     c,
	}
}

func (v *Verifier) Stop() {
	v.cache.Stop()
}

// Verify резолвит bearer-токен в identity. Ошибка — соединение отклоняется
// до создания какого-либо состояния в registry.
func (v *Verifier) Verify(tokenStr string) (domain.Identity, error) {
	if item := v.cache.Get(tokenStr); item != nil {
		return item.Value(), nil
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, domain.ErrInvalidToken
		}
		return v.public, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !token.Valid {
		return domain.Identity{}, domain.ErrInvalidToken
	}

	if !claims.VerifyIssuer(v.issuer, true) {
		return domain.Identity{}, domain.ErrInvalidToken
	}
	if !claims.VerifyAudience(v.audience, true) {
		return domain.Identity{}, domain.ErrInvalidToken
	}

	// временные клеймы с допуском clockSkew
	now := time.Now()
	nbf := time.Unix(claims.NotBefore, 0).Add(-v.clockSkew)
	exp := time.Unix(claims.ExpiresAt, 0).Add(v.clockSkew)
	if now.Before(nbf) || now.After(exp) {
		return domain.Identity{}, domain.ErrTokenExpired
	}

	ident, err := identityFromClaims(claims)
	if err != nil {
		return domain.Identity{}, err
	}

	// TTL кэша не должен пережить сам токен
	ttl := ttlcache.DefaultTTL
	if until := exp.Sub(now); until < v.cacheTTL {
		ttl = until
	}
	v.cache.Set(tokenStr, ident, ttl)

	return ident, nil
}

func identityFromClaims(claims *AccessClaims) (domain.Identity, error) {
	if claims.Subject == "" {
		return domain.Identity{}, domain.ErrInvalidSubject
	}
	var id int64
	if _, err := fmt.Sscan(claims.Subject, &id); err != nil {
		return domain.Identity{}, domain.ErrInvalidSubject
	}
	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	return domain.Identity{UserID: id, Username: username}, nil
}
