package tuya

import "time"

// Version identifies a Tuya LAN protocol dialect.
type Version string

const (
	Version31 Version = "3.1"
	Version32 Version = "3.2"
	Version33 Version = "3.3"
	Version34 Version = "3.4"
	Version35 Version = "3.5"
)

// DeviceType selects which payload template and command overrides apply.
// It is distinct from Version: it starts out derived from Version but can
// be mutated at runtime (type_0d detection, reset back to type_0a).
type DeviceType string

const (
	DeviceType0A DeviceType = "type_0a" // default template set
	DeviceType0D DeviceType = "type_0d" // device answers DP_QUERY with "data unvalid"
	DeviceTypeV34 DeviceType = "v3.4"
	DeviceTypeV35 DeviceType = "v3.5"
)

// Command is a Tuya protocol command byte.
type Command uint32

// Command bytes, bit-exact with spec.md §6.
const (
	CmdAPConfig           Command = 0x01
	CmdActive             Command = 0x02
	CmdSessKeyNegStart    Command = 0x03
	CmdSessKeyNegResp     Command = 0x04
	CmdSessKeyNegFinish   Command = 0x05
	CmdUnbind             Command = 0x06
	CmdControl            Command = 0x07
	CmdStatus             Command = 0x08
	CmdHeartBeat          Command = 0x09
	CmdDPQuery            Command = 0x0A
	CmdDeviceInfo         Command = 0x0B
	CmdLocalTimeQuery     Command = 0x0C
	CmdControlNew         Command = 0x0D
	CmdEnableWifi         Command = 0x0E
	CmdDPQueryNew         Command = 0x10
	CmdSceneExecute       Command = 0x11
	CmdUpdateDPS          Command = 0x12
	CmdUDPNewDiscovery    Command = 0x13
	CmdAPConfigNew        Command = 0x14
	CmdBoardcastLPV34     Command = 0x23
	CmdLANExtStream       Command = 0x40
)

// Default network parameters, bit-exact with spec.md §6.
const (
	DefaultPort         = 6668
	HeartbeatInterval   = 10 * time.Second
	DefaultTimeout      = 5 * time.Second
	MaxPayloadSize      = 2000
	GCMNonceSize        = 12
	GCMTagSize          = 16
	AESBlockSize        = 16
	LocalKeySize        = 16
)

// UpdateDPSWhitelist lists the default DP indices used for UpdateDPS/Reset
// when the caller doesn't name any; detect_available_dps builds its own set
// per range instead (see Session's pendingDPS field).
var UpdateDPSWhitelist = []int{18, 19, 20}

// Reserved virtual sequence numbers used by the dispatcher to route
// messages that do not carry the caller's own seqno. These must never
// collide with a real on-wire seqno (sequence numbers start at 1 and only
// increase), so small negative sentinels are used.
const (
	seqnoHeartbeat  int64 = -100
	seqnoReset      int64 = -101
	seqnoSessionKey int64 = -102
)

// noHeaderCommands is the set of commands that never get a version header
// prepended to their plaintext payload, per spec.md §4.3.
var noHeaderCommands = map[Command]bool{
	CmdDPQuery:          true,
	CmdDPQueryNew:       true,
	CmdUpdateDPS:        true,
	CmdHeartBeat:        true,
	CmdSessKeyNegStart:  true,
	CmdSessKeyNegResp:   true,
	CmdSessKeyNegFinish: true,
}

// sessionKeyCommands is the set of commands sent/received during the
// handshake; they are always encrypted with the device key, never the
// session key, and never gain a version header.
var sessionKeyCommands = map[Command]bool{
	CmdSessKeyNegStart:  true,
	CmdSessKeyNegResp:   true,
	CmdSessKeyNegFinish: true,
}

// emptyAckCommands is the set of commands whose successful reply carries no
// payload at all; an empty body is treated as a successful ACK rather than
// a decode failure.
var emptyAckCommands = map[Command]bool{
	CmdHeartBeat:  true,
	CmdControl:    true,
	CmdControlNew: true,
}
