package tuya

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
)

// aesECBEncrypt encrypts plaintext under key using AES-128 in ECB mode,
// applying PKCS#7 padding first when pad is true. ECB has no block chaining
// so each 16-byte block is encrypted independently; Tuya's pre-3.5 dialects
// rely on exactly this (no IV is exchanged).
func aesECBEncrypt(key, plaintext []byte, pad bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if pad {
		plaintext = pkcs7Pad(plaintext, block.BlockSize())
	}
	if len(plaintext)%block.BlockSize() != 0 {
		return nil, encryptionErrorf("aesECBEncrypt", "plaintext length %d not a multiple of block size", len(plaintext))
	}
	out := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], plaintext[i:i+block.BlockSize()])
	}
	return out, nil
}

// aesECBDecrypt decrypts ciphertext under key using AES-128-ECB, removing
// PKCS#7 padding when unpad is true. Unpad is tolerant: see pkcs7Unpad.
func aesECBDecrypt(key, ciphertext []byte, unpad bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, encryptionErrorf("aesECBDecrypt", "ciphertext length %d not a multiple of block size", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], ciphertext[i:i+block.BlockSize()])
	}
	if unpad {
		out = pkcs7Unpad(out, block.BlockSize())
	}
	return out, nil
}

// aesECBEncryptBase64 is the v3.1 control-path helper: ECB-encrypt then
// base64-encode the result.
func aesECBEncryptBase64(key, plaintext []byte, pad bool) (string, error) {
	ct, err := aesECBEncrypt(key, plaintext, pad)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// aesECBDecryptBase64 reverses aesECBEncryptBase64.
func aesECBDecryptBase64(key []byte, b64 string, unpad bool) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, decodeErrorf("aesECBDecryptBase64", "invalid base64: %w", err)
	}
	return aesECBDecrypt(key, ct, unpad)
}

// aesGCMEncrypt encrypts plaintext under key/nonce with AES-128-GCM,
// authenticating aad if non-empty, and returns ciphertext and the 16-byte
// tag separately (Tuya's 6699 frame stores them in distinct fields).
func aesGCMEncrypt(key, nonce, aad, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	ct := sealed[:len(sealed)-gcm.Overhead()]
	tg := sealed[len(sealed)-gcm.Overhead():]
	return ct, tg, nil
}

// aesGCMDecrypt decrypts ciphertext/tag under key/nonce with AES-128-GCM,
// verifying aad if non-empty. A tag mismatch returns a KindEncryption error.
func aesGCMDecrypt(key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, encryptionErrorf("aesGCMDecrypt", "gcm tag verification failed: %w", err)
	}
	return plaintext, nil
}

// aesGCMDecryptNoAuth is the unauthenticated recovery fallback described in
// spec.md §4.1: it runs the AES-CTR keystream GCM would use for the message
// body, skipping the two blocks GCM reserves for the hash subkey and tag
// mask (counter 0 and 1), so the data keystream starts at counter 2.
// Callers MUST set the resulting message's IntegrityOK to false.
func aesGCMDecryptNoAuth(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	counter := make([]byte, 0, len(nonce)+4)
	counter = append(counter, nonce...)
	counter = append(counter, 0x00, 0x00, 0x00, 0x02)
	stream := cipher.NewCTR(block, counter)
	out := make([]byte, len(ciphertext))
	stream.XORKeyStream(out, ciphertext)
	return out, nil
}

// pkcs7Pad appends PKCS#7 padding to data for the given block size.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte{}, data...), padding...)
}

// pkcs7Unpad removes PKCS#7 padding from data. Tolerant by design: some
// devices return unpadded plaintext for short messages, so an out-of-range
// trailing byte or inconsistent padding bytes returns data unchanged rather
// than erroring.
func pkcs7Unpad(data []byte, blockSize int) []byte {
	if len(data) == 0 {
		return data
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return data
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return data
		}
	}
	return data[:len(data)-padLen]
}
