package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

func (c *Client) setHeaders(req *http.Request, body []byte, txID string) {
	now := c.now()
	created := now.Unix()

	req.Header.Set("Authorization", c.getAccessToken())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Transaction-ID", txID)
	req.Header.Set("X-Client-Transaction-Datetime", now.UTC().Format("2006-01-02T15:04:05.000Z"))

	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	signature := signingString(digest, req.Method, req.URL.Path, created, txID)
	signature = base64.StdEncoding.EncodeToString(hmac256([]byte(c.hmacKey), []byte(signature)))

	req.Header.Set("Digest", digest)
	req.Header.Set("Signature", fmt.Sprintf(
		`keyId="%s",algorithm="hs2019",created=%d,headers="digest (request-target) (created) x-client-transaction-id",signature="%s"`,
		c.keyID, created, signature,
	))
}

func signingString(digest, method, path string, created int64, txID string) string {
	return fmt.Sprintf("digest: %s\n(request-target): %s %s\n(created): %d\nx-client-transaction-id: %s",
		digest, strings.ToLower(method), path, created, txID)
}

func hmac256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
