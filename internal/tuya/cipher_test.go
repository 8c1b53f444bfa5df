package tuya

import "testing"

func testKey() []byte {
	return []byte("0123456789abcdef")
}

func TestAESECBRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"one block", []byte("0123456789abcdef")},
		{"unaligned", []byte("hello world")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := aesECBEncrypt(testKey(), tt.plaintext, true)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}
			if len(ct)%AESBlockSize != 0 {
				t.Fatalf("ciphertext length %d not block-aligned", len(ct))
			}
			pt, err := aesECBDecrypt(testKey(), ct, true)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			if string(pt) != string(tt.plaintext) {
				t.Errorf("round trip = %q, want %q", pt, tt.plaintext)
			}
		})
	}
}

func TestAESECBBase64RoundTrip(t *testing.T) {
	plaintext := []byte(`{"dps":{"1":true}}`)
	b64, err := aesECBEncryptBase64(testKey(), plaintext, true)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := aesECBDecryptBase64(testKey(), b64, true)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(pt) != string(plaintext) {
		t.Errorf("round trip = %q, want %q", pt, plaintext)
	}
}

func TestPKCS7UnpadTolerant(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"valid padding", append([]byte("0123456789abcd"), 2, 2), []byte("0123456789abcd")},
		{"zero pad byte", append([]byte("0123456789abcde"), 0), append([]byte("0123456789abcde"), 0)},
		{"pad longer than data", []byte{0xff}, []byte{0xff}},
		{"inconsistent padding", []byte("0123456789abcd\x01\x02"), []byte("0123456789abcd\x01\x02")},
		{"empty", []byte{}, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pkcs7Unpad(tt.in, AESBlockSize)
			if string(got) != string(tt.want) {
				t.Errorf("pkcs7Unpad(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := testKey()
	nonce := []byte("123456789012") // 12 bytes
	aad := []byte("header-bytes-1")
	plaintext := []byte(`{"dps":{"1":false}}`)

	ct, tag, err := aesGCMEncrypt(key, nonce, aad, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(tag) != GCMTagSize {
		t.Fatalf("tag length = %d, want %d", len(tag), GCMTagSize)
	}

	pt, err := aesGCMDecrypt(key, nonce, aad, ct, tag)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(pt) != string(plaintext) {
		t.Errorf("round trip = %q, want %q", pt, plaintext)
	}
}

func TestAESGCMDecryptBadTag(t *testing.T) {
	key := testKey()
	nonce := []byte("123456789012")
	ct, tag, err := aesGCMEncrypt(key, nonce, nil, []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	tag[0] ^= 0xff

	_, err = aesGCMDecrypt(key, nonce, nil, ct, tag)
	if !IsEncryption(err) {
		t.Fatalf("expected encryption error for tampered tag, got %v", err)
	}
}

func TestAESGCMDecryptNoAuthRecoversPlaintext(t *testing.T) {
	key := testKey()
	nonce := []byte("123456789012")
	plaintext := []byte("some recoverable bytes")

	ct, _, err := aesGCMEncrypt(key, nonce, nil, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := aesGCMDecryptNoAuth(key, nonce, ct)
	if err != nil {
		t.Fatalf("decrypt no-auth: %v", err)
	}
	if string(pt) != string(plaintext) {
		t.Errorf("no-auth recovery = %q, want %q", pt, plaintext)
	}
}
