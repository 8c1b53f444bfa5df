package cloudapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// emptyBodySHA256 is the hex-encoded SHA256 of an empty body, used as the
// content-hash component of the string-to-sign when a request has none.
const emptyBodySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// stringToSign builds the canonical request string Tuya's signing scheme
// hashes: HTTP method, the SHA256 of the body, a sorted "Signature-Headers"
// subset (unused here, so empty), then the path plus sorted query string.
func stringToSign(method, path string, query map[string]string, body []byte) string {
	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteString("\n")
	sb.WriteString(bodyDigest(body))
	sb.WriteString("\n")
	sb.WriteString("\n") // no signed headers
	sb.WriteString(canonicalPath(path, query))
	return sb.String()
}

func bodyDigest(body []byte) string {
	if len(body) == 0 {
		return emptyBodySHA256
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func canonicalPath(path string, query map[string]string) string {
	if len(query) == 0 {
		return path
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(path)
	sb.WriteString("?")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString("&")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(query[k])
	}
	return sb.String()
}

// sign computes Tuya's HMAC-SHA256 request signature. For a token request
// (accessToken == ""), the signed string is clientID+t+nonce+stringToSign.
// For an authenticated request, accessToken is inserted after clientID.
func sign(secret, clientID, accessToken, t, nonce, method, path string, query map[string]string, body []byte) string {
	var sb strings.Builder
	sb.WriteString(clientID)
	sb.WriteString(accessToken)
	sb.WriteString(t)
	if nonce != "" {
		sb.WriteString(nonce)
	}
	sb.WriteString(stringToSign(method, path, query, body))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func timestampMillis(nowUnixMilli int64) string {
	return strconv.FormatInt(nowUnixMilli, 10)
}
