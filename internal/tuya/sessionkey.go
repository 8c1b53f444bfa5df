package tuya

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/muurk/tuyalan/internal/logging"
)

// sessionKeyNonceSize is the length of the nonces exchanged during the
// handshake, independent of GCMNonceSize (which is the frame-layer IV size
// for ordinary 6699 traffic).
const sessionKeyNonceSize = 16

// negotiateSessionKey runs the three-message handshake required by protocol
// versions 3.4 and 3.5 (spec.md §4.5's "connecting -> connected_unkeyed ->
// connected_ready" transition). send must encrypt payload with the device's
// local key (never a session key - none exists yet) and return the device's
// decrypted reply payload, or an error. localNonce must be sessionKeyNonceSize
// random bytes generated by the caller.
//
// It returns the derived session key, sized and transformed per version:
// v3.4's result is AES-ECB-encrypted under localKey; v3.5's is the first 16
// bytes of an AES-GCM ciphertext under localKey with nonce=localNonce[:12].
func negotiateSessionKey(version Version, localKey, localNonce []byte, send func(cmd Command, payload []byte) ([]byte, error)) ([]byte, error) {
	if len(localNonce) != sessionKeyNonceSize {
		return nil, sessionKeyErrorf("negotiateSessionKey", "local nonce must be %d bytes, got %d", sessionKeyNonceSize, len(localNonce))
	}

	respBody, err := send(CmdSessKeyNegStart, localNonce)
	if err != nil {
		return nil, err
	}
	if len(respBody) < sessionKeyNonceSize+sha256.Size {
		return nil, sessionKeyErrorf("negotiateSessionKey", "session key response too short: %d bytes", len(respBody))
	}
	remoteNonce := respBody[:sessionKeyNonceSize]
	remoteHMAC := respBody[sessionKeyNonceSize : sessionKeyNonceSize+sha256.Size]

	// The HMAC check here is advisory, not a hard gate: spec.md §4.4 notes
	// some firmware revisions send a wrong HMAC in this step. A mismatch is
	// logged and the handshake continues.
	expectedHMAC := hmacSHA256(localKey, localNonce)
	if !hmac.Equal(expectedHMAC, remoteHMAC) {
		logging.Warn("session key handshake: device HMAC over local nonce does not match")
	}

	finishPayload := hmacSHA256(localKey, remoteNonce)
	if _, err := send(CmdSessKeyNegFinish, finishPayload); err != nil {
		return nil, err
	}

	raw := xorBytes(localNonce, remoteNonce)
	switch version {
	case Version34:
		sessionKey, err := aesECBEncrypt(localKey, raw, false)
		if err != nil {
			return nil, sessionKeyErrorf("negotiateSessionKey", "deriving v3.4 session key: %w", err)
		}
		return sessionKey, nil
	case Version35:
		nonce := localNonce[:GCMNonceSize]
		ciphertext, _, err := aesGCMEncrypt(localKey, nonce, nil, raw)
		if err != nil {
			return nil, sessionKeyErrorf("negotiateSessionKey", "deriving v3.5 session key: %w", err)
		}
		if len(ciphertext) < LocalKeySize {
			return nil, sessionKeyErrorf("negotiateSessionKey", "v3.5 session key ciphertext too short: %d bytes", len(ciphertext))
		}
		sessionKey := ciphertext[:LocalKeySize]
		if shouldRetryKeyDerivation(sessionKey) {
			// Flagged per spec.md §9's design note: some devices are
			// suspected to misbehave with a key shaped this way, but the
			// condition isn't acted on without confirmed device behavior.
			logging.Warn("derived v3.5 session key has a leading zero byte")
		}
		return sessionKey, nil
	default:
		return nil, sessionKeyErrorf("negotiateSessionKey", "protocol %s does not use a session key", version)
	}
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// shouldRetryKeyDerivation flags the v3.5 key-shape quirk noted in spec.md
// §4.4/§9: a derived session key whose first byte is 0x00 is suspected to
// cause some devices to misbehave. The engine logs this but does not retry
// automatically, since the source material doesn't confirm the condition.
func shouldRetryKeyDerivation(key []byte) bool {
	return len(key) > 0 && key[0] == 0x00
}
