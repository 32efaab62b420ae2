package integration

import "time"

// OperationKind is the closed set of operations that can be dispatched
type OperationKind string

const (
	OpSendChatMessage    OperationKind = "send-chat-message"
	OpGetUserCurrency    OperationKind = "get-user-currency"
	OpAdjustUserCurrency OperationKind = "adjust-user-currency"
	OpGetUserMetadata    OperationKind = "get-user-metadata"
	OpSetUserMetadata    OperationKind = "set-user-metadata"
)

// AllOperationKinds returns every operation kind in declaration order
func AllOperationKinds() []OperationKind {
	return []OperationKind{
		OpSendChatMessage,
		OpGetUserCurrency,
		OpAdjustUserCurrency,
		OpGetUserMetadata,
		OpSetUserMetadata,
	}
}

// String returns the wire name of the operation
func (k OperationKind) String() string {
	return string(k)
}

// IsValid reports whether k is a known operation
func (k OperationKind) IsValid() bool {
	for _, known := range AllOperationKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseOperationKind converts a wire name to an OperationKind
func ParseOperationKind(s string) (OperationKind, bool) {
	k := OperationKind(s)
	return k, k.IsValid()
}

// OperationDescriptor carries the remote call defaults for one operation
type OperationDescriptor struct {
	Kind       OperationKind
	Timeout    time.Duration
	MaxRetries int
	// SideEffects marks operations that must not run twice for one request ID
	SideEffects bool
}

// OperationDescriptors is the static remote call table keyed by operation
var OperationDescriptors = map[OperationKind]OperationDescriptor{
	OpSendChatMessage:    {Kind: OpSendChatMessage, Timeout: 10 * time.Second, MaxRetries: 2, SideEffects: true},
	OpGetUserCurrency:    {Kind: OpGetUserCurrency, Timeout: 5 * time.Second, MaxRetries: 1},
	OpAdjustUserCurrency: {Kind: OpAdjustUserCurrency, Timeout: 5 * time.Second, MaxRetries: 1, SideEffects: true},
	OpGetUserMetadata:    {Kind: OpGetUserMetadata, Timeout: 5 * time.Second, MaxRetries: 1},
	OpSetUserMetadata:    {Kind: OpSetUserMetadata, Timeout: 5 * time.Second, MaxRetries: 1},
}

// DescriptorFor looks up the call defaults for an operation
func DescriptorFor(kind OperationKind) (OperationDescriptor, bool) {
	d, ok := OperationDescriptors[kind]
	return d, ok
}
