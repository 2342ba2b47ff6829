package store

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/covenant/vm"
)

func buildScript(t *testing.T, build func(b *vm.ScriptBuilder)) []byte {
	t.Helper()
	b := vm.NewScriptBuilder()
	build(b)
	return b.Bytes()
}

func addScript(t *testing.T) []byte {
	return buildScript(t, func(b *vm.ScriptBuilder) {
		b.Emit(vm.OpAdd)
		b.Emit(vm.OpRet)
	})
}

func testStore(t *testing.T, s ScriptStore) {
	code := addScript(t)

	hash, err := s.Put(code)
	if err != nil {
		t.Fatalf("Put() = %v", err)
	}
	if hash != HashScript(code) {
		t.Fatalf("Put() hash = %s, want the content address", hash)
	}

	// Storing the same bytecode twice is a no-op.
	again, err := s.Put(code)
	if err != nil || again != hash {
		t.Fatalf("second Put() = %s, %v", again, err)
	}

	if !s.Has(hash) {
		t.Fatal("Has() = false after Put")
	}
	got, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if !bytes.Equal(got, code) {
		t.Fatalf("Get() = %x, want %x", got, code)
	}

	var missing Hash
	missing[0] = 0xAA
	if s.Has(missing) {
		t.Fatal("Has() = true for an absent hash")
	}
	if _, err := s.Get(missing); !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrScriptNotFound", err)
	}

	if err := s.BindToken(7, hash); err != nil {
		t.Fatalf("BindToken() = %v", err)
	}
	script, err := s.ResolveToken(7)
	if err != nil {
		t.Fatalf("ResolveToken() = %v", err)
	}
	if !bytes.Equal(script.Bytes(), code) {
		t.Fatalf("resolved script = %x, want %x", script.Bytes(), code)
	}

	if _, err := s.ResolveToken(8); !errors.Is(err, ErrTokenNotBound) {
		t.Fatalf("ResolveToken(unbound) = %v, want ErrTokenNotBound", err)
	}
	if err := s.BindToken(9, missing); !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("BindToken(missing) = %v, want ErrScriptNotFound", err)
	}

	// Rebinding moves the token.
	other, err := s.Put(buildScript(t, func(b *vm.ScriptBuilder) {
		b.Emit(vm.OpPush1)
		b.Emit(vm.OpRet)
	}))
	if err != nil {
		t.Fatalf("Put(other) = %v", err)
	}
	if err := s.BindToken(7, other); err != nil {
		t.Fatalf("rebind = %v", err)
	}
	script, err = s.ResolveToken(7)
	if err != nil {
		t.Fatalf("ResolveToken() after rebind = %v", err)
	}
	if bytes.Equal(script.Bytes(), code) {
		t.Fatal("rebind did not take effect")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testStore(t, s)
}

func TestPutRejectsInvalidScript(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.Put(nil); err == nil {
		t.Fatal("empty script stored")
	}
	if _, err := s.Put([]byte{0x25}); err == nil {
		t.Fatal("script with an undefined opcode stored")
	}
	// A jump into an operand fails strict validation.
	bad := buildScript(t, func(b *vm.ScriptBuilder) {
		b.EmitJump(vm.OpJmpL, 7)
		b.EmitWithOperand(vm.OpPushInt32, 1, 2, 3, 4)
		b.Emit(vm.OpRet)
	})
	if _, err := s.Put(bad); err == nil {
		t.Fatal("malformed script stored")
	}
}

func TestMemoryStoreCopiesBytecode(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	code := addScript(t)
	hash, err := s.Put(code)
	if err != nil {
		t.Fatalf("Put() = %v", err)
	}
	code[0] = byte(vm.OpSub) // caller mutation must not reach the store

	got, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got[0] != byte(vm.OpAdd) {
		t.Fatal("store shares the caller's slice")
	}
}

func TestStoreDrivesCallToken(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	hash, err := s.Put(buildScript(t, func(b *vm.ScriptBuilder) {
		b.Emit(vm.OpPush7)
		b.Emit(vm.OpRet)
	}))
	if err != nil {
		t.Fatalf("Put() = %v", err)
	}
	if err := s.BindToken(1, hash); err != nil {
		t.Fatalf("BindToken() = %v", err)
	}

	e := vm.NewEngine()
	e.SetTokenResolver(s)
	b := vm.NewScriptBuilder()
	b.EmitCallToken(1)
	b.Emit(vm.OpRet)
	e.LoadScript(b.ToScript())
	if err := e.Execute(); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if e.State() != vm.StateHalt {
		t.Fatalf("state = %s, want HALT", e.State())
	}
	v := e.PopResult().(vm.Integer)
	if v.BigInt().Int64() != 7 {
		t.Fatalf("result = %s, want 7", v.BigInt())
	}
}
