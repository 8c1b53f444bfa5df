// Package udpbroadcast decodes the periodic UDP broadcasts Tuya devices
// send on ports 6666/6667 advertising themselves to the local network
// (spec.md §6's "C7" component). It has no dependency on the internal/tuya
// package's TCP session machinery - devices broadcast regardless of
// whether anything is connected to them.
package udpbroadcast

import (
	"bytes"
	"crypto/aes"
	"crypto/md5"
	"encoding/json"
	"fmt"
)

// udpKey is the fixed AES-128-ECB key every Tuya device uses for its
// discovery broadcast, independent of any per-device local key:
// MD5("yGAdlopoPVldABfn").
var udpKey = md5.Sum([]byte("yGAdlopoPVldABfn"))

const (
	broadcastHeadSize = 20
	broadcastTailSize = 8
)

// Record is one decoded broadcast datagram.
type Record struct {
	GwID       string `json:"gwId"`
	IP         string `json:"ip"`
	Version    string `json:"version"`
	ProductKey string `json:"productKey"`
	Encrypted  bool   `json:"-"`
}

// Decrypt strips the fixed head/tail framing Tuya wraps its broadcast JSON
// in and decrypts it with the fixed UDP discovery key, falling back to
// treating the body as cleartext JSON if AES decryption fails (older
// firmware broadcasts unencrypted).
func Decrypt(datagram []byte) (*Record, error) {
	body := datagram
	if len(body) > broadcastHeadSize+broadcastTailSize {
		body = body[broadcastHeadSize : len(body)-broadcastTailSize]
	}

	var rec Record
	if plaintext, err := aesECBDecrypt(udpKey[:], body); err == nil {
		if n := len(plaintext); n > 0 {
			p := int(plaintext[n-1])
			if p > 0 && p <= aes.BlockSize && bytes.Equal(plaintext[n-p:], bytes.Repeat([]byte{byte(p)}, p)) {
				plaintext = plaintext[:n-p]
			}
		}
		if json.Unmarshal(bytes.TrimRight(plaintext, "\x00"), &rec) == nil {
			rec.Encrypted = true
			return &rec, nil
		}
	}

	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("udpbroadcast: body is neither decryptable nor cleartext JSON: %w", err)
	}
	return &rec, nil
}

func aesECBDecrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("udpbroadcast: ciphertext length %d not a multiple of block size", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], ciphertext[i:i+block.BlockSize()])
	}
	return out, nil
}

// encryptForTest mirrors the device side of Decrypt, used only by this
// package's tests to build fixture datagrams.
func encryptForTest(rec Record) ([]byte, error) {
	plain, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(udpKey[:])
	if err != nil {
		return nil, err
	}
	padLen := block.BlockSize() - len(plain)%block.BlockSize()
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], padded[i:i+block.BlockSize()])
	}
	var buf bytes.Buffer
	buf.Write(make([]byte, broadcastHeadSize))
	buf.Write(out)
	buf.Write(make([]byte, broadcastTailSize))
	return buf.Bytes(), nil
}
