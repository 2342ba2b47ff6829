package vm

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/chazu/covenant/crypto"
)

// ---------------------------------------------------------------------------
// Syscall interop
// ---------------------------------------------------------------------------

// InteropFunc is a host function reachable through SYSCALL. It operates on
// the engine's current evaluation stack and reports failure by panicking
// with a *VMError, exactly like an instruction handler.
type InteropFunc func(e *Engine)

// InteropDescriptor binds a syscall name to its identifier and handler.
type InteropDescriptor struct {
	Name    string
	ID      uint32
	Handler InteropFunc
}

// InteropID derives the wire identifier for a syscall name: the first four
// bytes of its SHA-256 digest, little-endian.
func InteropID(name string) uint32 {
	h := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint32(h[:4])
}

// RegisterInterop makes a host function callable by name and returns its
// identifier.
func (e *Engine) RegisterInterop(name string, fn InteropFunc) uint32 {
	id := InteropID(name)
	e.interops[id] = &InteropDescriptor{Name: name, ID: id, Handler: fn}
	return id
}

// TokenResolver maps a CALLT token to the script it addresses.
type TokenResolver interface {
	ResolveToken(token uint16) (*Script, error)
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

// Builtin syscall names.
const (
	SyscallMurmur32 = "System.Crypto.Murmur32"
	SyscallSha256   = "System.Crypto.Sha256"
)

// registerBuiltins installs the crypto syscalls every engine exposes.
func registerBuiltins(e *Engine) {
	e.RegisterInterop(SyscallMurmur32, interopMurmur32)
	e.RegisterInterop(SyscallSha256, interopSha256)
}

// interopMurmur32 pops the seed, then the data, and pushes the 32-bit hash
// as an unsigned integer.
func interopMurmur32(e *Engine) {
	seed := e.Pop().BigInt()
	if !seed.IsUint64() || seed.Uint64() > 0xFFFFFFFF {
		throwf(FaultInvalidOperand, "murmur seed %s out of range", seed)
	}
	data := e.Pop().Bytes()
	sum := crypto.Murmur32(data, uint32(seed.Uint64()))
	e.Push(NewInteger(new(big.Int).SetUint64(uint64(sum))))
}

// interopSha256 pops the data and pushes its 32-byte digest.
func interopSha256(e *Engine) {
	data := e.Pop().Bytes()
	sum := sha256.Sum256(data)
	e.Push(ByteString(sum[:]))
}
