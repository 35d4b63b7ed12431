package adapters

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
)

// AuthChallengeParseError - a 401 challenge is missing its realm or
// nonce. Fatal for the transaction, never retried.
type AuthChallengeParseError struct {
	Header string
}

func (e *AuthChallengeParseError) Error() string {
	return fmt.Sprintf("missing realm or nonce in challenge: %q", e.Header)
}

var (
	realmPattern = regexp.MustCompile(`realm="([^"]+)"`)
	noncePattern = regexp.MustCompile(`nonce="([^"]+)"`)
)

// ParseChallenge - extracts the realm and nonce tokens from a
// WWW-Authenticate header value.
func ParseChallenge(header string) (realm, nonce string, err error) {
	r := realmPattern.FindStringSubmatch(header)
	n := noncePattern.FindStringSubmatch(header)
	if r == nil || n == nil {
		return "", "", &AuthChallengeParseError{Header: header}
	}

	return r[1], n[1], nil
}

// DigestResponse - computes the classic Digest challenge response
// (no qop, no client nonce, no nonce count):
//
//	HA1 = md5(username:realm:password)
//	HA2 = md5(method:uri)
//	response = md5(HA1:nonce:HA2)
func DigestResponse(username, password, realm, nonce, method, uri string) string {
	ha1 := md5Hex(username + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)

	return md5Hex(ha1 + ":" + nonce + ":" + ha2)
}

// DigestAuthorization - renders the Authorization header line carried by
// an authenticated retry.
func DigestAuthorization(username, password, realm, nonce, method, uri string) string {
	response := DigestResponse(username, password, realm, nonce, method, uri)

	return fmt.Sprintf(
		`Authorization: Digest username="%s",realm="%s",nonce="%s",uri="%s",response="%s"`,
		username, realm, nonce, uri, response,
	)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
