package tuya

import (
	"encoding/binary"
	"testing"
)

func TestPackUnpackMessage55AACRC(t *testing.T) {
	key := testKey()
	payload := []byte(`{"gwId":"abc","devId":"abc"}`)

	framed := packMessage55AA(42, CmdDPQuery, payload, key, false)

	_, _, total, ok := unpack55AAHeader(framed)
	if !ok {
		t.Fatalf("unpack55AAHeader: not enough bytes")
	}
	if total != len(framed) {
		t.Fatalf("header total = %d, want %d", total, len(framed))
	}

	msg, err := unpackMessage55AA(framed, key, false)
	if err != nil {
		t.Fatalf("unpackMessage55AA: %v", err)
	}
	if !msg.IntegrityOK {
		t.Error("expected IntegrityOK = true")
	}
	if msg.Seqno != 42 {
		t.Errorf("seqno = %d, want 42", msg.Seqno)
	}
	if msg.Cmd != CmdDPQuery {
		t.Errorf("cmd = %v, want %v", msg.Cmd, CmdDPQuery)
	}
	if string(msg.Payload) != string(payload) {
		t.Errorf("payload = %q, want %q", msg.Payload, payload)
	}
}

func TestPackUnpackMessage55AAHMAC(t *testing.T) {
	key := testKey()
	payload := []byte(`{"dps":{"1":true}}`)

	framed := packMessage55AA(7, CmdControl, payload, key, true)
	msg, err := unpackMessage55AA(framed, key, true)
	if err != nil {
		t.Fatalf("unpackMessage55AA: %v", err)
	}
	if !msg.IntegrityOK {
		t.Error("expected IntegrityOK = true with correct HMAC key")
	}

	// Wrong key should still parse but fail integrity check.
	msg2, err := unpackMessage55AA(framed, []byte("fedcba9876543210"), true)
	if err != nil {
		t.Fatalf("unpackMessage55AA with wrong key: %v", err)
	}
	if msg2.IntegrityOK {
		t.Error("expected IntegrityOK = false with wrong HMAC key")
	}
}

func TestUnpackMessage55AARetcodeHeuristic(t *testing.T) {
	header := make([]byte, header55AASize)
	binary.BigEndian.PutUint32(header[0:4], prefix55AA)
	binary.BigEndian.PutUint32(header[4:8], 1)
	binary.BigEndian.PutUint32(header[8:12], uint32(CmdDPQuery))

	retcode := make([]byte, 4) // retcode 0
	jsonBody := []byte(`{"dps":{"1":true}}`)
	body := append(retcode, jsonBody...)
	length := uint32(len(body) + crc32SigSize + 4)
	binary.BigEndian.PutUint32(header[12:16], length)

	signed := append(append([]byte{}, header...), body...)
	sig := signature55AA(signed, nil, false)

	frame := append(append(append([]byte{}, header...), body...), sig...)
	suffix := make([]byte, 4)
	binary.BigEndian.PutUint32(suffix, suffix55AA)
	frame = append(frame, suffix...)

	msg, err := unpackMessage55AA(frame, nil, false)
	if err != nil {
		t.Fatalf("unpackMessage55AA: %v", err)
	}
	if msg.Retcode != 0 {
		t.Errorf("retcode = %d, want 0", msg.Retcode)
	}
	if string(msg.Payload) != string(jsonBody) {
		t.Errorf("payload = %q, want %q (retcode should have been stripped)", msg.Payload, jsonBody)
	}
}

func TestPackUnpackMessage6699(t *testing.T) {
	key := testKey()
	nonce := []byte("abcdefghijkl") // 12 bytes
	payload := []byte(`{"dps":{"1":true}}`)

	framed, err := packMessage6699(3, CmdControlNew, payload, key, nonce)
	if err != nil {
		t.Fatalf("packMessage6699: %v", err)
	}

	_, _, total, ok := unpack6699Header(framed)
	if !ok {
		t.Fatalf("unpack6699Header: not enough bytes")
	}
	if total != len(framed) {
		t.Fatalf("header total = %d, want %d", total, len(framed))
	}

	msg, err := unpackMessage6699(framed, key)
	if err != nil {
		t.Fatalf("unpackMessage6699: %v", err)
	}
	if !msg.IntegrityOK {
		t.Error("expected IntegrityOK = true")
	}
	if msg.Seqno != 3 {
		t.Errorf("seqno = %d, want 3", msg.Seqno)
	}
	if string(msg.Payload) != string(payload) {
		t.Errorf("payload = %q, want %q", msg.Payload, payload)
	}
}

func TestUnpackMessage6699WrongKeyFallsBackToNoAuth(t *testing.T) {
	key := testKey()
	nonce := []byte("abcdefghijkl")
	payload := []byte("arbitrary bytes, not necessarily json")

	framed, err := packMessage6699(9, CmdStatus, payload, key, nonce)
	if err != nil {
		t.Fatalf("packMessage6699: %v", err)
	}

	msg, err := unpackMessage6699(framed, []byte("00000000000000000"[:16]))
	if err != nil {
		t.Fatalf("unpackMessage6699 with wrong key: %v", err)
	}
	if msg.IntegrityOK {
		t.Error("expected IntegrityOK = false when falling back to unauthenticated CTR")
	}
}

func TestParseHeaderIncompleteBuffer(t *testing.T) {
	header := make([]byte, header55AASize)
	binary.BigEndian.PutUint32(header[0:4], prefix55AA)
	binary.BigEndian.PutUint32(header[12:16], 100)

	_, ok, err := parseHeader(header[:10])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a buffer shorter than the header")
	}
}

func TestParseHeaderUnknownPrefix(t *testing.T) {
	buf := []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0}
	_, _, err := parseHeader(buf)
	if err == nil {
		t.Fatal("expected error for unrecognized prefix")
	}
	if !IsDecode(err) {
		t.Errorf("expected decode error, got %v", err)
	}
}
