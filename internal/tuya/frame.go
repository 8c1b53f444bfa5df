package tuya

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"
)

// Frame prefixes/suffixes, bit-exact with spec.md §4.2.
const (
	prefix55AA uint32 = 0x000055AA
	suffix55AA uint32 = 0x0000AA55
	prefix6699 uint32 = 0x00006699
	suffix6699 uint32 = 0x00009966

	header55AASize = 16 // prefix + seqno + cmd + length
	header6699Size = 18 // prefix + version + reserved + seqno + cmd + length

	crc32SigSize = 4
	hmacSigSize  = 32
)

// Message is the decoded form of a single on-wire frame, shared by both the
// 55AA and 6699 layouts (spec.md §4.2).
type Message struct {
	Seqno       uint32
	Cmd         Command
	Payload     []byte
	Retcode     uint32
	IntegrityOK bool
	Prefix      uint32
	Nonce       []byte // 6699 only
	Tag         []byte // 6699 only
}

// retcodeHeuristicThreshold is the "looks like a small integer" cutoff used
// to decide whether the leading 4 bytes of a decoded body are a retcode or
// the start of the JSON payload. This is a guess inherited from the
// reference implementation and can misclassify payloads whose first bytes
// happen to encode a small integer; preserved verbatim per spec.md §4.2/§9.
const retcodeHeuristicThreshold = 100

// packMessage55AA builds a 55AA-framed request. Requests never carry a
// retcode (only device responses do). useHMAC selects the v3.4 HMAC-SHA256
// signature over the v3.1-3.3 CRC32 checksum; key is the device key or, once
// negotiated, the session key.
func packMessage55AA(seqno uint32, cmd Command, payload, key []byte, useHMAC bool) []byte {
	sigSize := crc32SigSize
	if useHMAC {
		sigSize = hmacSigSize
	}
	length := uint32(len(payload) + sigSize + 4)

	header := make([]byte, header55AASize)
	binary.BigEndian.PutUint32(header[0:4], prefix55AA)
	binary.BigEndian.PutUint32(header[4:8], seqno)
	binary.BigEndian.PutUint32(header[8:12], uint32(cmd))
	binary.BigEndian.PutUint32(header[12:16], length)

	signed := append(append([]byte{}, header...), payload...)
	sig := signature55AA(signed, key, useHMAC)

	out := make([]byte, 0, header55AASize+len(payload)+sigSize+4)
	out = append(out, header...)
	out = append(out, payload...)
	out = append(out, sig...)
	suffix := make([]byte, 4)
	binary.BigEndian.PutUint32(suffix, suffix55AA)
	out = append(out, suffix...)
	return out
}

func signature55AA(signed, key []byte, useHMAC bool) []byte {
	if useHMAC {
		mac := hmac.New(sha256.New, key)
		mac.Write(signed)
		return mac.Sum(nil)
	}
	sum := crc32.ChecksumIEEE(signed)
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, sum)
	return out
}

// unpack55AAHeader reports the seqno, cmd and total on-wire size of
// a 55AA frame from its first 16 bytes, or ok=false if more bytes are
// needed. It does not validate the payload.
func unpack55AAHeader(buf []byte) (seqno uint32, cmd Command, total int, ok bool) {
	if len(buf) < header55AASize {
		return 0, 0, 0, false
	}
	length := binary.BigEndian.Uint32(buf[12:16])
	return binary.BigEndian.Uint32(buf[4:8]),
		Command(binary.BigEndian.Uint32(buf[8:12])),
		header55AASize + int(length),
		true
}

// unpackMessage55AA decodes a complete 55AA frame (len(buf) == total from
// unpack55AAHeader). useHMAC and key select the verification scheme exactly
// as in packMessage55AA. Verification failure sets IntegrityOK=false but
// still returns the parsed message, per spec.md §4.2.
func unpackMessage55AA(buf, key []byte, useHMAC bool) (*Message, error) {
	if len(buf) < header55AASize+4 {
		return nil, decodeErrorf("unpackMessage55AA", "frame too short: %d bytes", len(buf))
	}
	length := int(binary.BigEndian.Uint32(buf[12:16]))
	if length > MaxPayloadSize+hmacSigSize+4 {
		return nil, decodeErrorf("unpackMessage55AA", "declared length %d exceeds sanity limit", length)
	}
	if len(buf) != header55AASize+length {
		return nil, decodeErrorf("unpackMessage55AA", "frame size %d does not match header length %d", len(buf), length)
	}

	sigSize := crc32SigSize
	if useHMAC {
		sigSize = hmacSigSize
	}
	if length < sigSize+4 {
		return nil, decodeErrorf("unpackMessage55AA", "declared length %d too small for signature+suffix", length)
	}

	suffixOff := header55AASize + length - 4
	suffix := binary.BigEndian.Uint32(buf[suffixOff:])
	if suffix != suffix55AA {
		return nil, decodeErrorf("unpackMessage55AA", "bad suffix magic 0x%08x", suffix)
	}

	sigOff := suffixOff - sigSize
	body := buf[header55AASize:sigOff]
	sig := buf[sigOff:suffixOff]

	signed := buf[:header55AASize]
	signed = append(append([]byte{}, signed...), body...)
	expected := signature55AA(signed, key, useHMAC)
	integrityOK := hmac.Equal(expected, sig)

	msg := &Message{
		Seqno:       binary.BigEndian.Uint32(buf[4:8]),
		Cmd:         Command(binary.BigEndian.Uint32(buf[8:12])),
		Prefix:      prefix55AA,
		IntegrityOK: integrityOK,
	}

	// Heuristic: leading u32 below the threshold is a response retcode,
	// not the start of the JSON payload.
	if len(body) >= 4 {
		leading := binary.BigEndian.Uint32(body[:4])
		if leading < retcodeHeuristicThreshold {
			msg.Retcode = leading
			msg.Payload = body[4:]
			return msg, nil
		}
	}
	msg.Payload = body
	return msg, nil
}

// packMessage6699 builds a 6699-framed, AES-GCM-protected request (v3.5).
// nonce must be GCMNonceSize bytes.
func packMessage6699(seqno uint32, cmd Command, payload, key, nonce []byte) ([]byte, error) {
	header := make([]byte, header6699Size)
	binary.BigEndian.PutUint32(header[0:4], prefix6699)
	header[4] = 0 // version
	header[5] = 0 // reserved
	binary.BigEndian.PutUint32(header[6:10], seqno)
	binary.BigEndian.PutUint32(header[10:14], uint32(cmd))
	// length is independent of the AAD, so fill it in before encrypting:
	// GCM ciphertext is exactly as long as the plaintext, tag is fixed-size.
	length := uint32(len(nonce) + len(payload) + GCMTagSize)
	binary.BigEndian.PutUint32(header[14:18], length)

	// AAD is the 14 header bytes after the prefix: version, reserved,
	// seqno, cmd, length.
	aad := header[4:18]
	ciphertext, tag, err := aesGCMEncrypt(key, nonce, aad, payload)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, header6699Size+len(nonce)+len(ciphertext)+len(tag)+4)
	out = append(out, header...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	suffix := make([]byte, 4)
	binary.BigEndian.PutUint32(suffix, suffix6699)
	out = append(out, suffix...)
	return out, nil
}

// unpack6699Header reports the seqno, cmd and total on-wire size of a 6699
// frame from its first 18 bytes, or ok=false if more bytes are needed.
func unpack6699Header(buf []byte) (seqno uint32, cmd Command, total int, ok bool) {
	if len(buf) < header6699Size {
		return 0, 0, 0, false
	}
	length := binary.BigEndian.Uint32(buf[14:18])
	return binary.BigEndian.Uint32(buf[6:10]),
		Command(binary.BigEndian.Uint32(buf[10:14])),
		header6699Size + int(length) + 4,
		true
}

// unpackMessage6699 decodes a complete 6699 frame. It tries, in order: GCM
// with AAD, GCM without AAD, raw unauthenticated CTR - reporting the first
// strategy that succeeds, per spec.md §4.2. A leading 4 zero bytes in the
// recovered plaintext is a retcode and is stripped.
func unpackMessage6699(buf, key []byte) (*Message, error) {
	if len(buf) < header6699Size+4 {
		return nil, decodeErrorf("unpackMessage6699", "frame too short: %d bytes", len(buf))
	}
	length := int(binary.BigEndian.Uint32(buf[14:18]))
	if length > MaxPayloadSize+GCMNonceSize+GCMTagSize {
		return nil, decodeErrorf("unpackMessage6699", "declared length %d exceeds sanity limit", length)
	}
	total := header6699Size + length + 4
	if len(buf) != total {
		return nil, decodeErrorf("unpackMessage6699", "frame size %d does not match header length %d", len(buf), length)
	}
	if length < GCMNonceSize+GCMTagSize {
		return nil, decodeErrorf("unpackMessage6699", "declared length %d too small for nonce+tag", length)
	}

	suffix := binary.BigEndian.Uint32(buf[header6699Size+length:])
	if suffix != suffix6699 {
		return nil, decodeErrorf("unpackMessage6699", "bad suffix magic 0x%08x", suffix)
	}

	nonce := buf[header6699Size : header6699Size+GCMNonceSize]
	rest := buf[header6699Size+GCMNonceSize : header6699Size+length]
	ciphertext := rest[:len(rest)-GCMTagSize]
	tag := rest[len(rest)-GCMTagSize:]
	aad := buf[4:header6699Size]

	msg := &Message{
		Seqno:  binary.BigEndian.Uint32(buf[6:10]),
		Cmd:    Command(binary.BigEndian.Uint32(buf[10:14])),
		Prefix: prefix6699,
		Nonce:  append([]byte{}, nonce...),
		Tag:    append([]byte{}, tag...),
	}

	plaintext, err := aesGCMDecrypt(key, nonce, aad, ciphertext, tag)
	if err == nil {
		msg.IntegrityOK = true
		msg.Payload = stripRetcode6699(plaintext, msg)
		return msg, nil
	}
	plaintext, err = aesGCMDecrypt(key, nonce, nil, ciphertext, tag)
	if err == nil {
		msg.IntegrityOK = true
		msg.Payload = stripRetcode6699(plaintext, msg)
		return msg, nil
	}
	plaintext, err = aesGCMDecryptNoAuth(key, nonce, ciphertext)
	if err != nil {
		return nil, encryptionErrorf("unpackMessage6699", "all GCM decrypt strategies failed: %w", err)
	}
	msg.IntegrityOK = false
	msg.Payload = stripRetcode6699(plaintext, msg)
	return msg, nil
}

func stripRetcode6699(plaintext []byte, msg *Message) []byte {
	if len(plaintext) >= 4 {
		leading := binary.BigEndian.Uint32(plaintext[:4])
		allZero := plaintext[0] == 0 && plaintext[1] == 0 && plaintext[2] == 0 && plaintext[3] == 0
		if allZero {
			msg.Retcode = leading
			return plaintext[4:]
		}
	}
	return plaintext
}

// parseHeader inspects the start of buf and reports how large the complete
// frame would be, or ok=false if not enough bytes have arrived yet. It is
// used by the dispatcher to decide whether to wait for more data, and
// returns an error on an unrecognized prefix (resync case).
func parseHeader(buf []byte) (total int, ok bool, err error) {
	if len(buf) >= 4 {
		prefix := binary.BigEndian.Uint32(buf[:4])
		switch prefix {
		case prefix55AA:
			_, _, total, ok := unpack55AAHeader(buf)
			return total, ok, nil
		case prefix6699:
			_, _, total, ok := unpack6699Header(buf)
			return total, ok, nil
		default:
			return 0, false, decodeErrorf("parseHeader", "unrecognized frame prefix 0x%08x", prefix)
		}
	}
	return 0, false, nil
}
