package tuya

import (
	"bytes"
	"encoding/json"
)

// payloadTemplate describes how to build the JSON body for one command on
// one device type, per spec.md §4.3/§4.4. The zero value adds no envelope
// fields, so only the dps (if any) is sent.
type payloadTemplate struct {
	// hasGwID/hasDevID/hasUID/hasT control which envelope fields are added
	// around the "dps" field for commands that need them.
	hasGwID, hasDevID, hasUID, hasT bool

	// override, when non-zero, is the command actually put on the wire
	// instead of the logical command the template was looked up under
	// (spec.md §4.3's "command_override" - e.g. type_0d sends DP_QUERY_NEW
	// in place of DP_QUERY).
	override Command
}

// payloadTemplates mirrors the reference implementation's PAYLOAD_DICT: one
// entry per (device type, command) that needs special envelope handling.
// A device type absent from the map uses the DeviceType0A entries; a
// command absent from them gets the zero template.
var payloadTemplates = map[DeviceType]map[Command]payloadTemplate{
	DeviceType0A: {
		CmdControl:    {hasGwID: true, hasDevID: true, hasT: true},
		CmdStatus:     {hasGwID: true, hasDevID: true},
		CmdHeartBeat:  {},
		CmdDPQuery:    {hasGwID: true, hasDevID: true, hasT: true},
		CmdUpdateDPS:  {hasDevID: true},
		CmdControlNew: {hasDevID: true, hasUID: true, hasT: true},
		CmdDPQueryNew: {hasDevID: true, hasUID: true, hasT: true},
	},
	DeviceType0D: {
		CmdControl:    {hasGwID: true, hasDevID: true, hasT: true},
		CmdStatus:     {hasGwID: true, hasDevID: true},
		CmdHeartBeat:  {},
		// type_0d devices answer a plain DP_QUERY with "data unvalid";
		// every later query escalates to DP_QUERY_NEW instead.
		CmdDPQuery:    {hasDevID: true, hasUID: true, hasT: true, override: CmdDPQueryNew},
		CmdUpdateDPS:  {hasDevID: true},
		CmdControlNew: {hasDevID: true, hasUID: true, hasT: true},
		CmdDPQueryNew: {hasDevID: true, hasUID: true, hasT: true},
	},
}

// envelope is the JSON shape shared by all payload templates; fields are
// omitted when empty so the wire payload matches the template exactly.
type envelope struct {
	GwID string         `json:"gwId,omitempty"`
	DevID string        `json:"devId,omitempty"`
	UID  string         `json:"uid,omitempty"`
	T    string         `json:"t,omitempty"`
	DPS  map[string]any `json:"dps,omitempty"`
}

// buildPayload constructs the JSON body to encrypt/frame for cmd against a
// device of the given type/id, with dps as the data-point payload (may be
// nil for commands like HEART_BEAT and DP_QUERY that carry no dps of their
// own). timestamp is injected as a decimal string when the template calls
// for "t", since that's what devices expect. It returns the command that
// must actually go out on the wire: usually cmd itself, but the template's
// command_override (spec.md §4.3) takes over when one is set for the active
// device type.
func buildPayload(devType DeviceType, cmd Command, deviceID string, dps map[string]any, timestamp string) (Command, []byte, error) {
	tmpl, ok := payloadTemplates[devType][cmd]
	if !ok {
		tmpl = payloadTemplates[DeviceType0A][cmd]
	}
	wireCmd := cmd
	if tmpl.override != 0 {
		wireCmd = tmpl.override
	}
	env := envelope{}
	if tmpl.hasGwID {
		env.GwID = deviceID
	}
	if tmpl.hasDevID {
		env.DevID = deviceID
	}
	if tmpl.hasUID {
		env.UID = deviceID
	}
	if tmpl.hasT {
		env.T = timestamp
	}
	if dps != nil {
		env.DPS = dps
	}
	out, err := json.Marshal(env)
	if err != nil {
		return 0, nil, encodingErrorf("buildPayload", "marshal envelope: %w", err)
	}
	return wireCmd, out, nil
}

// decodedPayload is the parsed form of a device reply body, after any
// version header has been stripped and the wire payload has been decrypted.
type decodedPayload struct {
	DPS  map[string]any
	Raw  map[string]any
	Dirty bool // "data unvalid" or similarly malformed - triggers type_0d
}

// dataUnvalidMarker is returned verbatim by some devices instead of a JSON
// body when they don't recognize the query shape used; seeing it is the
// signal to fall back to DeviceType0D, per spec.md §4.4.
const dataUnvalidMarker = "data unvalid"

// decodePayload parses a device reply body (already decrypted, with any
// version header and retcode already stripped by the frame/session layer).
// A zero-length body is not an error: callers check emptyAckCommands
// themselves and treat it as a bare ACK.
func decodePayload(body []byte) (*decodedPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &decodedPayload{}, nil
	}
	if string(trimmed) == dataUnvalidMarker {
		return &decodedPayload{Dirty: true}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, decodeErrorf("decodePayload", "invalid JSON body: %w", err)
	}

	dps := liftDPS(raw)
	return &decodedPayload{DPS: dps, Raw: raw}, nil
}

// liftDPS extracts the dps map from a decoded reply. Protocol 3.4+ nests
// dps one level down, under "data", for some commands (status broadcasts in
// particular); this flattens both shapes to one, per spec.md §4.4's
// "data.dps lifting" rule.
func liftDPS(raw map[string]any) map[string]any {
	if dps, ok := raw["dps"].(map[string]any); ok {
		return dps
	}
	if data, ok := raw["data"].(map[string]any); ok {
		if dps, ok := data["dps"].(map[string]any); ok {
			return dps
		}
	}
	return nil
}

// needsVersionHeader reports whether cmd's plaintext payload should be
// prefixed with the protocol version header (e.g. "3.3" padded to 15 bytes
// with NUL, or for 3.4 the same followed by a 16-byte MD5 digest), per
// spec.md §4.3. Where the header goes relative to encryption is up to
// encodePayload55AA; 3.1 and the session-key handshake commands and the
// commands listed in noHeaderCommands never get one, and 3.5 frames are
// sent without one whatever this reports.
func needsVersionHeader(version Version, cmd Command) bool {
	if version == Version31 {
		return false
	}
	if sessionKeyCommands[cmd] {
		return false
	}
	return !noHeaderCommands[cmd]
}

// protocolHeaderPad is the fixed-width NUL padding applied after the
// 3-byte version string in the 15-byte version header (3.2-3.4); 3.4
// appends its 16-byte MD5 digest after it.
const protocolHeaderPad = 12
