package registry

import "encoding/hex"

// localKeyPad is XORed against a device's local key before it touches
// disk. This is obfuscation, not encryption - it keeps a local key from
// showing up in cleartext if the config file is cat'd, pasted into a
// bug report, or grepped for by accident, nothing more. Anyone with
// read access to config.yaml can reverse it trivially; real secrecy
// still rests on filesystem permissions.
var localKeyPad = []byte("tuyalan-registry-local-key-pad!!")

func obfuscateLocalKey(key string) string {
	if key == "" {
		return ""
	}
	return hex.EncodeToString(xorWithPad([]byte(key)))
}

func deobfuscateLocalKey(stored string) string {
	if stored == "" {
		return ""
	}
	raw, err := hex.DecodeString(stored)
	if err != nil {
		// Pre-obfuscation config files kept the key in plain text;
		// fall back to treating it as such rather than losing it.
		return stored
	}
	return string(xorWithPad(raw))
}

func xorWithPad(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ localKeyPad[i%len(localKeyPad)]
	}
	return out
}
