//go:build integration

package tuya

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// fakeDeviceV33 accepts one connection, answers DP_QUERY with a DPS map and
// CONTROL/HEART_BEAT with an empty ack, using the 3.3 dialect (55AA frames,
// CRC32 checksum, no session key).
func fakeDeviceV33(t *testing.T, ln net.Listener, key []byte, dps map[string]any) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	_, cmd, total, ok := unpack55AAHeaderForTest(buf[:n])
	if !ok || total != n {
		t.Errorf("fakeDeviceV33: unexpected first frame: %v", buf[:n])
		return
	}

	var respPayload []byte
	switch cmd {
	case CmdDPQuery:
		envelope := map[string]any{"dps": dps}
		respPayload, _ = json.Marshal(envelope)
		respPayload = append(versionHeaderPlain(Version33), mustECBEncrypt(t, key, respPayload)...)
	default:
		respPayload = nil
	}

	msg, err := unpackMessage55AA(buf[:n], key, false)
	if err != nil {
		t.Errorf("fakeDeviceV33: decode request: %v", err)
		return
	}
	resp := packMessage55AA(msg.Seqno, msg.Cmd, respPayload, key, false)
	conn.Write(resp)
}

func unpack55AAHeaderForTest(buf []byte) (uint32, Command, int, bool) {
	return unpack55AAHeader(buf)
}

func mustECBEncrypt(t *testing.T, key, plaintext []byte) []byte {
	t.Helper()
	ct, err := aesECBEncrypt(key, plaintext, true)
	if err != nil {
		t.Fatalf("aesECBEncrypt: %v", err)
	}
	return ct
}

func TestSessionConnectAndStatusV33(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	key := testKey()
	wantDPS := map[string]any{"1": true, "2": float64(50)}
	go fakeDeviceV33(t, ln, key, wantDPS)

	addr := ln.Addr().(*net.TCPAddr)
	sess := NewSession(Config{
		IP:       addr.IP.String(),
		Port:     addr.Port,
		DeviceID: "test-device",
		LocalKey: key,
		Version:  Version33,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Connect(ctx, NopListener{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	dps, err := sess.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if dps["1"] != true {
		t.Errorf("dps[1] = %v, want true", dps["1"])
	}
}
