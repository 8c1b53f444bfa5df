package udpbroadcast

import "testing"

func TestDecryptEncryptedBroadcast(t *testing.T) {
	want := Record{GwID: "gw123", IP: "192.168.1.50", Version: "3.3", ProductKey: "pk1"}
	datagram, err := encryptForTest(want)
	if err != nil {
		t.Fatalf("encryptForTest: %v", err)
	}

	got, err := Decrypt(datagram)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got.GwID != want.GwID || got.IP != want.IP || got.Version != want.Version {
		t.Errorf("Decrypt = %+v, want %+v", got, want)
	}
	if !got.Encrypted {
		t.Error("expected Encrypted=true for an ECB-wrapped datagram")
	}
}

func TestDecryptCleartextFallback(t *testing.T) {
	body := []byte(`{"gwId":"gw999","ip":"10.0.0.5","version":"3.1"}`)
	datagram := append(append(make([]byte, broadcastHeadSize), body...), make([]byte, broadcastTailSize)...)

	got, err := Decrypt(datagram)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got.GwID != "gw999" {
		t.Errorf("GwID = %q, want gw999", got.GwID)
	}
	if got.Encrypted {
		t.Error("expected Encrypted=false for a cleartext datagram")
	}
}

func TestDecryptGarbageReturnsError(t *testing.T) {
	datagram := append(append(make([]byte, broadcastHeadSize), []byte("not json and not aligned")...), make([]byte, broadcastTailSize)...)
	if _, err := Decrypt(datagram); err == nil {
		t.Error("expected an error for undecodable garbage")
	}
}
