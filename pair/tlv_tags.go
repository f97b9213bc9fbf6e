// Package pair implements the pair-setup and pair-verify state machines:
// SRP-6a + Ed25519 identity exchange for initial trust, and per-session
// Curve25519 ECDH for the encrypted transport that follows.
package pair

// TLV8 tags used by both pair-setup and pair-verify, per the HAP pairing
// TLV schema.
const (
	TagMethod        byte = 0x00
	TagIdentifier    byte = 0x01
	TagSalt          byte = 0x02
	TagPublicKey     byte = 0x03
	TagProof         byte = 0x04
	TagEncryptedData byte = 0x05
	TagState         byte = 0x06
	TagError         byte = 0x07
	TagRetryDelay    byte = 0x08
	TagSignature     byte = 0x0A
	TagPermissions   byte = 0x0B
	TagFragmentData  byte = 0x0C
	TagFragmentLast  byte = 0x0D
)

// Method is the pair-setup/pair-verify method tag value.
type Method byte

const (
	MethodPairSetup       Method = 0x00
	MethodPairVerify      Method = 0x00
	MethodAddPairing      Method = 0x03
	MethodRemovePairing   Method = 0x04
	MethodListPairings    Method = 0x05
)

// State is the pairing M-number state tag value.
type State byte

const (
	StateM1 State = 0x01
	StateM2 State = 0x02
	StateM3 State = 0x03
	StateM4 State = 0x04
	StateM5 State = 0x05
	StateM6 State = 0x06
)

// ErrorCode is the TLV error tag value, per the HAP-defined error table.
type ErrorCode byte

const (
	ErrorUnknown        ErrorCode = 0x01
	ErrorAuthentication ErrorCode = 0x02
	ErrorBackoff        ErrorCode = 0x03
	ErrorMaxPeers       ErrorCode = 0x04
	ErrorMaxTries       ErrorCode = 0x05
	ErrorUnavailable    ErrorCode = 0x06
	ErrorBusy           ErrorCode = 0x07
)
