package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Constants
const (
	OpPushInt8   Opcode = 0x00 // push 8-bit signed integer
	OpPushInt16  Opcode = 0x01 // push 16-bit signed integer
	OpPushInt32  Opcode = 0x02 // push 32-bit signed integer
	OpPushInt64  Opcode = 0x03 // push 64-bit signed integer
	OpPushInt128 Opcode = 0x04 // push 128-bit signed integer
	OpPushInt256 Opcode = 0x05 // push 256-bit signed integer
	OpPushTrue   Opcode = 0x08 // push boolean true
	OpPushFalse  Opcode = 0x09 // push boolean false
	OpPushA      Opcode = 0x0A // push pointer to instruction (32-bit position)
	OpPushNull   Opcode = 0x0B // push null
	OpPushData1  Opcode = 0x0C // push bytes (8-bit length prefix)
	OpPushData2  Opcode = 0x0D // push bytes (16-bit length prefix)
	OpPushData4  Opcode = 0x0E // push bytes (32-bit length prefix)
	OpPushM1     Opcode = 0x0F // push -1
	OpPush0      Opcode = 0x10 // push 0
	OpPush1      Opcode = 0x11 // push 1
	OpPush2      Opcode = 0x12 // push 2
	OpPush3      Opcode = 0x13 // push 3
	OpPush4      Opcode = 0x14 // push 4
	OpPush5      Opcode = 0x15 // push 5
	OpPush6      Opcode = 0x16 // push 6
	OpPush7      Opcode = 0x17 // push 7
	OpPush8      Opcode = 0x18 // push 8
	OpPush9      Opcode = 0x19 // push 9
	OpPush10     Opcode = 0x1A // push 10
	OpPush11     Opcode = 0x1B // push 11
	OpPush12     Opcode = 0x1C // push 12
	OpPush13     Opcode = 0x1D // push 13
	OpPush14     Opcode = 0x1E // push 14
	OpPush15     Opcode = 0x1F // push 15
	OpPush16     Opcode = 0x20 // push 16
)

// Flow Control
const (
	OpNop        Opcode = 0x21 // no operation
	OpJmp        Opcode = 0x22 // unconditional jump (8-bit offset)
	OpJmpL       Opcode = 0x23 // unconditional jump (32-bit offset)
	OpJmpIf      Opcode = 0x24 // pop, jump if truthy (8-bit offset)
	OpJmpIfL     Opcode = 0x25 // pop, jump if truthy (32-bit offset)
	OpJmpIfNot   Opcode = 0x26 // pop, jump if falsy (8-bit offset)
	OpJmpIfNotL  Opcode = 0x27 // pop, jump if falsy (32-bit offset)
	OpJmpEq      Opcode = 0x28 // pop 2, jump if numerically equal (8-bit offset)
	OpJmpEqL     Opcode = 0x29 // pop 2, jump if numerically equal (32-bit offset)
	OpJmpNe      Opcode = 0x2A // pop 2, jump if not equal (8-bit offset)
	OpJmpNeL     Opcode = 0x2B // pop 2, jump if not equal (32-bit offset)
	OpJmpGt      Opcode = 0x2C // pop 2, jump if a > b (8-bit offset)
	OpJmpGtL     Opcode = 0x2D // pop 2, jump if a > b (32-bit offset)
	OpJmpGe      Opcode = 0x2E // pop 2, jump if a >= b (8-bit offset)
	OpJmpGeL     Opcode = 0x2F // pop 2, jump if a >= b (32-bit offset)
	OpJmpLt      Opcode = 0x30 // pop 2, jump if a < b (8-bit offset)
	OpJmpLtL     Opcode = 0x31 // pop 2, jump if a < b (32-bit offset)
	OpJmpLe      Opcode = 0x32 // pop 2, jump if a <= b (8-bit offset)
	OpJmpLeL     Opcode = 0x33 // pop 2, jump if a <= b (32-bit offset)
	OpCall       Opcode = 0x34 // call subroutine (8-bit offset)
	OpCallL      Opcode = 0x35 // call subroutine (32-bit offset)
	OpCallA      Opcode = 0x36 // call through pointer on stack
	OpCallT      Opcode = 0x37 // call external script by token (16-bit token)
	OpAbort      Opcode = 0x38 // abort execution, uncatchable
	OpAssert     Opcode = 0x39 // pop, abort if falsy
	OpThrow      Opcode = 0x3A // pop, raise as exception
	OpTry        Opcode = 0x3B // open try region (8-bit catch, 8-bit finally)
	OpTryL       Opcode = 0x3C // open try region (32-bit catch, 32-bit finally)
	OpEndTry     Opcode = 0x3D // leave try/catch (8-bit end offset)
	OpEndTryL    Opcode = 0x3E // leave try/catch (32-bit end offset)
	OpEndFinally Opcode = 0x3F // leave finally, resume unwind or continue
	OpRet        Opcode = 0x40 // return from current context
	OpSyscall    Opcode = 0x41 // invoke host function (32-bit identifier)
)

// Stack
const (
	OpDepth    Opcode = 0x43 // push evaluation stack depth
	OpDrop     Opcode = 0x45 // discard top of stack
	OpNip      Opcode = 0x46 // discard second item
	OpXDrop    Opcode = 0x48 // pop n, discard item n deep
	OpClear    Opcode = 0x49 // discard all items
	OpDup      Opcode = 0x4A // duplicate top of stack
	OpOver     Opcode = 0x4B // copy second item to top
	OpPick     Opcode = 0x4D // pop n, copy item n deep to top
	OpTuck     Opcode = 0x4E // insert copy of top below second
	OpSwap     Opcode = 0x50 // swap top two items
	OpRot      Opcode = 0x51 // rotate top three items
	OpRoll     Opcode = 0x52 // pop n, move item n deep to top
	OpReverse3 Opcode = 0x53 // reverse top 3 items
	OpReverse4 Opcode = 0x54 // reverse top 4 items
	OpReverseN Opcode = 0x55 // pop n, reverse top n items
)

// Slots
const (
	OpInitSSlot Opcode = 0x56 // allocate static field slot (8-bit count)
	OpInitSlot  Opcode = 0x57 // allocate locals and arguments (8-bit, 8-bit)
	OpLdSFld0   Opcode = 0x58 // load static field 0
	OpLdSFld1   Opcode = 0x59 // load static field 1
	OpLdSFld2   Opcode = 0x5A // load static field 2
	OpLdSFld3   Opcode = 0x5B // load static field 3
	OpLdSFld4   Opcode = 0x5C // load static field 4
	OpLdSFld5   Opcode = 0x5D // load static field 5
	OpLdSFld6   Opcode = 0x5E // load static field 6
	OpLdSFld    Opcode = 0x5F // load static field (8-bit index)
	OpStSFld0   Opcode = 0x60 // store static field 0
	OpStSFld1   Opcode = 0x61 // store static field 1
	OpStSFld2   Opcode = 0x62 // store static field 2
	OpStSFld3   Opcode = 0x63 // store static field 3
	OpStSFld4   Opcode = 0x64 // store static field 4
	OpStSFld5   Opcode = 0x65 // store static field 5
	OpStSFld6   Opcode = 0x66 // store static field 6
	OpStSFld    Opcode = 0x67 // store static field (8-bit index)
	OpLdLoc0    Opcode = 0x68 // load local 0
	OpLdLoc1    Opcode = 0x69 // load local 1
	OpLdLoc2    Opcode = 0x6A // load local 2
	OpLdLoc3    Opcode = 0x6B // load local 3
	OpLdLoc4    Opcode = 0x6C // load local 4
	OpLdLoc5    Opcode = 0x6D // load local 5
	OpLdLoc6    Opcode = 0x6E // load local 6
	OpLdLoc     Opcode = 0x6F // load local (8-bit index)
	OpStLoc0    Opcode = 0x70 // store local 0
	OpStLoc1    Opcode = 0x71 // store local 1
	OpStLoc2    Opcode = 0x72 // store local 2
	OpStLoc3    Opcode = 0x73 // store local 3
	OpStLoc4    Opcode = 0x74 // store local 4
	OpStLoc5    Opcode = 0x75 // store local 5
	OpStLoc6    Opcode = 0x76 // store local 6
	OpStLoc     Opcode = 0x77 // store local (8-bit index)
	OpLdArg0    Opcode = 0x78 // load argument 0
	OpLdArg1    Opcode = 0x79 // load argument 1
	OpLdArg2    Opcode = 0x7A // load argument 2
	OpLdArg3    Opcode = 0x7B // load argument 3
	OpLdArg4    Opcode = 0x7C // load argument 4
	OpLdArg5    Opcode = 0x7D // load argument 5
	OpLdArg6    Opcode = 0x7E // load argument 6
	OpLdArg     Opcode = 0x7F // load argument (8-bit index)
	OpStArg0    Opcode = 0x80 // store argument 0
	OpStArg1    Opcode = 0x81 // store argument 1
	OpStArg2    Opcode = 0x82 // store argument 2
	OpStArg3    Opcode = 0x83 // store argument 3
	OpStArg4    Opcode = 0x84 // store argument 4
	OpStArg5    Opcode = 0x85 // store argument 5
	OpStArg6    Opcode = 0x86 // store argument 6
	OpStArg     Opcode = 0x87 // store argument (8-bit index)
)

// Splice
const (
	OpNewBuffer Opcode = 0x88 // pop n, push zeroed buffer of n bytes
	OpMemCpy    Opcode = 0x89 // copy bytes between buffers
	OpCat       Opcode = 0x8B // concatenate two byte sequences
	OpSubStr    Opcode = 0x8C // extract substring (index, count)
	OpLeft      Opcode = 0x8D // take leftmost n bytes
	OpRight     Opcode = 0x8E // take rightmost n bytes
)

// Bitwise Logic
const (
	OpInvert   Opcode = 0x90 // bitwise NOT
	OpAnd      Opcode = 0x91 // bitwise AND
	OpOr       Opcode = 0x92 // bitwise OR
	OpXor      Opcode = 0x93 // bitwise XOR
	OpEqual    Opcode = 0x97 // structural/byte equality
	OpNotEqual Opcode = 0x98 // negated equality
)

// Arithmetic
const (
	OpSign        Opcode = 0x99 // sign of integer (-1, 0, 1)
	OpAbs         Opcode = 0x9A // absolute value
	OpNegate      Opcode = 0x9B // arithmetic negation
	OpInc         Opcode = 0x9C // increment by one
	OpDec         Opcode = 0x9D // decrement by one
	OpAdd         Opcode = 0x9E // addition
	OpSub         Opcode = 0x9F // subtraction
	OpMul         Opcode = 0xA0 // multiplication
	OpDiv         Opcode = 0xA1 // truncated division
	OpMod         Opcode = 0xA2 // remainder
	OpPow         Opcode = 0xA3 // exponentiation
	OpSqrt        Opcode = 0xA4 // integer square root
	OpModMul      Opcode = 0xA5 // modular multiplication
	OpModPow      Opcode = 0xA6 // modular exponentiation (exp -1 = inverse)
	OpShl         Opcode = 0xA8 // shift left
	OpShr         Opcode = 0xA9 // arithmetic shift right
	OpNot         Opcode = 0xAA // logical NOT
	OpBoolAnd     Opcode = 0xAB // logical AND
	OpBoolOr      Opcode = 0xAC // logical OR
	OpNz          Opcode = 0xB1 // true if nonzero
	OpNumEqual    Opcode = 0xB3 // numeric equality
	OpNumNotEqual Opcode = 0xB4 // numeric inequality
	OpLt          Opcode = 0xB5 // less than
	OpLe          Opcode = 0xB6 // less or equal
	OpGt          Opcode = 0xB7 // greater than
	OpGe          Opcode = 0xB8 // greater or equal
	OpMin         Opcode = 0xB9 // smaller of two integers
	OpMax         Opcode = 0xBA // larger of two integers
	OpWithin      Opcode = 0xBB // x in [a, b)
)

// Compound Types
const (
	OpPackMap      Opcode = 0xBE // pop n, pack 2n items into map
	OpPackStruct   Opcode = 0xBF // pop n, pack n items into struct
	OpPack         Opcode = 0xC0 // pop n, pack n items into array
	OpUnpack       Opcode = 0xC1 // unpack collection, push count
	OpNewArray0    Opcode = 0xC2 // push empty array
	OpNewArray     Opcode = 0xC3 // pop n, push array of n nulls
	OpNewArrayT    Opcode = 0xC4 // pop n, push array of n typed defaults (8-bit type)
	OpNewStruct0   Opcode = 0xC5 // push empty struct
	OpNewStruct    Opcode = 0xC6 // pop n, push struct of n nulls
	OpNewMap       Opcode = 0xC8 // push empty map
	OpSize         Opcode = 0xCA // push element/byte count
	OpHasKey       Opcode = 0xCB // push whether key/index is present
	OpKeys         Opcode = 0xCC // push array of map keys
	OpValues       Opcode = 0xCD // push array of collection values
	OpPickItem     Opcode = 0xCE // push element at key/index
	OpAppend       Opcode = 0xCF // append element to array/struct
	OpSetItem      Opcode = 0xD0 // set element at key/index
	OpReverseItems Opcode = 0xD1 // reverse array/struct/buffer in place
	OpRemove       Opcode = 0xD2 // remove element at key/index
	OpClearItems   Opcode = 0xD3 // remove all elements
	OpPopItem      Opcode = 0xD4 // remove and push last array element
)

// Types
const (
	OpIsNull  Opcode = 0xD8 // push whether top is null
	OpIsType  Opcode = 0xD9 // push whether top has type (8-bit type)
	OpConvert Opcode = 0xDB // convert top to type (8-bit type)
)

// Extensions
const (
	OpAbortMsg  Opcode = 0xE0 // pop message, abort execution, uncatchable
	OpAssertMsg Opcode = 0xE1 // pop message and condition, abort if falsy
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // fixed operand size in bytes
	PrefixBytes  int    // length-prefix size for variable operands (PUSHDATA*)
}

// opcodeTable maps opcodes to their metadata. Opcodes absent from the table
// are invalid and fault when decoded.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Constants
	OpPushInt8:   {"PUSHINT8", 1, 0},
	OpPushInt16:  {"PUSHINT16", 2, 0},
	OpPushInt32:  {"PUSHINT32", 4, 0},
	OpPushInt64:  {"PUSHINT64", 8, 0},
	OpPushInt128: {"PUSHINT128", 16, 0},
	OpPushInt256: {"PUSHINT256", 32, 0},
	OpPushTrue:   {"PUSHT", 0, 0},
	OpPushFalse:  {"PUSHF", 0, 0},
	OpPushA:      {"PUSHA", 4, 0},
	OpPushNull:   {"PUSHNULL", 0, 0},
	OpPushData1:  {"PUSHDATA1", 0, 1},
	OpPushData2:  {"PUSHDATA2", 0, 2},
	OpPushData4:  {"PUSHDATA4", 0, 4},
	OpPushM1:     {"PUSHM1", 0, 0},
	OpPush0:      {"PUSH0", 0, 0},
	OpPush1:      {"PUSH1", 0, 0},
	OpPush2:      {"PUSH2", 0, 0},
	OpPush3:      {"PUSH3", 0, 0},
	OpPush4:      {"PUSH4", 0, 0},
	OpPush5:      {"PUSH5", 0, 0},
	OpPush6:      {"PUSH6", 0, 0},
	OpPush7:      {"PUSH7", 0, 0},
	OpPush8:      {"PUSH8", 0, 0},
	OpPush9:      {"PUSH9", 0, 0},
	OpPush10:     {"PUSH10", 0, 0},
	OpPush11:     {"PUSH11", 0, 0},
	OpPush12:     {"PUSH12", 0, 0},
	OpPush13:     {"PUSH13", 0, 0},
	OpPush14:     {"PUSH14", 0, 0},
	OpPush15:     {"PUSH15", 0, 0},
	OpPush16:     {"PUSH16", 0, 0},

	// Flow control
	OpNop:        {"NOP", 0, 0},
	OpJmp:        {"JMP", 1, 0},
	OpJmpL:       {"JMP_L", 4, 0},
	OpJmpIf:      {"JMPIF", 1, 0},
	OpJmpIfL:     {"JMPIF_L", 4, 0},
	OpJmpIfNot:   {"JMPIFNOT", 1, 0},
	OpJmpIfNotL:  {"JMPIFNOT_L", 4, 0},
	OpJmpEq:      {"JMPEQ", 1, 0},
	OpJmpEqL:     {"JMPEQ_L", 4, 0},
	OpJmpNe:      {"JMPNE", 1, 0},
	OpJmpNeL:     {"JMPNE_L", 4, 0},
	OpJmpGt:      {"JMPGT", 1, 0},
	OpJmpGtL:     {"JMPGT_L", 4, 0},
	OpJmpGe:      {"JMPGE", 1, 0},
	OpJmpGeL:     {"JMPGE_L", 4, 0},
	OpJmpLt:      {"JMPLT", 1, 0},
	OpJmpLtL:     {"JMPLT_L", 4, 0},
	OpJmpLe:      {"JMPLE", 1, 0},
	OpJmpLeL:     {"JMPLE_L", 4, 0},
	OpCall:       {"CALL", 1, 0},
	OpCallL:      {"CALL_L", 4, 0},
	OpCallA:      {"CALLA", 0, 0},
	OpCallT:      {"CALLT", 2, 0},
	OpAbort:      {"ABORT", 0, 0},
	OpAssert:     {"ASSERT", 0, 0},
	OpThrow:      {"THROW", 0, 0},
	OpTry:        {"TRY", 2, 0},
	OpTryL:       {"TRY_L", 8, 0},
	OpEndTry:     {"ENDTRY", 1, 0},
	OpEndTryL:    {"ENDTRY_L", 4, 0},
	OpEndFinally: {"ENDFINALLY", 0, 0},
	OpRet:        {"RET", 0, 0},
	OpSyscall:    {"SYSCALL", 4, 0},

	// Stack
	OpDepth:    {"DEPTH", 0, 0},
	OpDrop:     {"DROP", 0, 0},
	OpNip:      {"NIP", 0, 0},
	OpXDrop:    {"XDROP", 0, 0},
	OpClear:    {"CLEAR", 0, 0},
	OpDup:      {"DUP", 0, 0},
	OpOver:     {"OVER", 0, 0},
	OpPick:     {"PICK", 0, 0},
	OpTuck:     {"TUCK", 0, 0},
	OpSwap:     {"SWAP", 0, 0},
	OpRot:      {"ROT", 0, 0},
	OpRoll:     {"ROLL", 0, 0},
	OpReverse3: {"REVERSE3", 0, 0},
	OpReverse4: {"REVERSE4", 0, 0},
	OpReverseN: {"REVERSEN", 0, 0},

	// Slots
	OpInitSSlot: {"INITSSLOT", 1, 0},
	OpInitSlot:  {"INITSLOT", 2, 0},
	OpLdSFld0:   {"LDSFLD0", 0, 0},
	OpLdSFld1:   {"LDSFLD1", 0, 0},
	OpLdSFld2:   {"LDSFLD2", 0, 0},
	OpLdSFld3:   {"LDSFLD3", 0, 0},
	OpLdSFld4:   {"LDSFLD4", 0, 0},
	OpLdSFld5:   {"LDSFLD5", 0, 0},
	OpLdSFld6:   {"LDSFLD6", 0, 0},
	OpLdSFld:    {"LDSFLD", 1, 0},
	OpStSFld0:   {"STSFLD0", 0, 0},
	OpStSFld1:   {"STSFLD1", 0, 0},
	OpStSFld2:   {"STSFLD2", 0, 0},
	OpStSFld3:   {"STSFLD3", 0, 0},
	OpStSFld4:   {"STSFLD4", 0, 0},
	OpStSFld5:   {"STSFLD5", 0, 0},
	OpStSFld6:   {"STSFLD6", 0, 0},
	OpStSFld:    {"STSFLD", 1, 0},
	OpLdLoc0:    {"LDLOC0", 0, 0},
	OpLdLoc1:    {"LDLOC1", 0, 0},
	OpLdLoc2:    {"LDLOC2", 0, 0},
	OpLdLoc3:    {"LDLOC3", 0, 0},
	OpLdLoc4:    {"LDLOC4", 0, 0},
	OpLdLoc5:    {"LDLOC5", 0, 0},
	OpLdLoc6:    {"LDLOC6", 0, 0},
	OpLdLoc:     {"LDLOC", 1, 0},
	OpStLoc0:    {"STLOC0", 0, 0},
	OpStLoc1:    {"STLOC1", 0, 0},
	OpStLoc2:    {"STLOC2", 0, 0},
	OpStLoc3:    {"STLOC3", 0, 0},
	OpStLoc4:    {"STLOC4", 0, 0},
	OpStLoc5:    {"STLOC5", 0, 0},
	OpStLoc6:    {"STLOC6", 0, 0},
	OpStLoc:     {"STLOC", 1, 0},
	OpLdArg0:    {"LDARG0", 0, 0},
	OpLdArg1:    {"LDARG1", 0, 0},
	OpLdArg2:    {"LDARG2", 0, 0},
	OpLdArg3:    {"LDARG3", 0, 0},
	OpLdArg4:    {"LDARG4", 0, 0},
	OpLdArg5:    {"LDARG5", 0, 0},
	OpLdArg6:    {"LDARG6", 0, 0},
	OpLdArg:     {"LDARG", 1, 0},
	OpStArg0:    {"STARG0", 0, 0},
	OpStArg1:    {"STARG1", 0, 0},
	OpStArg2:    {"STARG2", 0, 0},
	OpStArg3:    {"STARG3", 0, 0},
	OpStArg4:    {"STARG4", 0, 0},
	OpStArg5:    {"STARG5", 0, 0},
	OpStArg6:    {"STARG6", 0, 0},
	OpStArg:     {"STARG", 1, 0},

	// Splice
	OpNewBuffer: {"NEWBUFFER", 0, 0},
	OpMemCpy:    {"MEMCPY", 0, 0},
	OpCat:       {"CAT", 0, 0},
	OpSubStr:    {"SUBSTR", 0, 0},
	OpLeft:      {"LEFT", 0, 0},
	OpRight:     {"RIGHT", 0, 0},

	// Bitwise logic
	OpInvert:   {"INVERT", 0, 0},
	OpAnd:      {"AND", 0, 0},
	OpOr:       {"OR", 0, 0},
	OpXor:      {"XOR", 0, 0},
	OpEqual:    {"EQUAL", 0, 0},
	OpNotEqual: {"NOTEQUAL", 0, 0},

	// Arithmetic
	OpSign:        {"SIGN", 0, 0},
	OpAbs:         {"ABS", 0, 0},
	OpNegate:      {"NEGATE", 0, 0},
	OpInc:         {"INC", 0, 0},
	OpDec:         {"DEC", 0, 0},
	OpAdd:         {"ADD", 0, 0},
	OpSub:         {"SUB", 0, 0},
	OpMul:         {"MUL", 0, 0},
	OpDiv:         {"DIV", 0, 0},
	OpMod:         {"MOD", 0, 0},
	OpPow:         {"POW", 0, 0},
	OpSqrt:        {"SQRT", 0, 0},
	OpModMul:      {"MODMUL", 0, 0},
	OpModPow:      {"MODPOW", 0, 0},
	OpShl:         {"SHL", 0, 0},
	OpShr:         {"SHR", 0, 0},
	OpNot:         {"NOT", 0, 0},
	OpBoolAnd:     {"BOOLAND", 0, 0},
	OpBoolOr:      {"BOOLOR", 0, 0},
	OpNz:          {"NZ", 0, 0},
	OpNumEqual:    {"NUMEQUAL", 0, 0},
	OpNumNotEqual: {"NUMNOTEQUAL", 0, 0},
	OpLt:          {"LT", 0, 0},
	OpLe:          {"LE", 0, 0},
	OpGt:          {"GT", 0, 0},
	OpGe:          {"GE", 0, 0},
	OpMin:         {"MIN", 0, 0},
	OpMax:         {"MAX", 0, 0},
	OpWithin:      {"WITHIN", 0, 0},

	// Compound types
	OpPackMap:      {"PACKMAP", 0, 0},
	OpPackStruct:   {"PACKSTRUCT", 0, 0},
	OpPack:         {"PACK", 0, 0},
	OpUnpack:       {"UNPACK", 0, 0},
	OpNewArray0:    {"NEWARRAY0", 0, 0},
	OpNewArray:     {"NEWARRAY", 0, 0},
	OpNewArrayT:    {"NEWARRAY_T", 1, 0},
	OpNewStruct0:   {"NEWSTRUCT0", 0, 0},
	OpNewStruct:    {"NEWSTRUCT", 0, 0},
	OpNewMap:       {"NEWMAP", 0, 0},
	OpSize:         {"SIZE", 0, 0},
	OpHasKey:       {"HASKEY", 0, 0},
	OpKeys:         {"KEYS", 0, 0},
	OpValues:       {"VALUES", 0, 0},
	OpPickItem:     {"PICKITEM", 0, 0},
	OpAppend:       {"APPEND", 0, 0},
	OpSetItem:      {"SETITEM", 0, 0},
	OpReverseItems: {"REVERSEITEMS", 0, 0},
	OpRemove:       {"REMOVE", 0, 0},
	OpClearItems:   {"CLEARITEMS", 0, 0},
	OpPopItem:      {"POPITEM", 0, 0},

	// Types
	OpIsNull:  {"ISNULL", 0, 0},
	OpIsType:  {"ISTYPE", 1, 0},
	OpConvert: {"CONVERT", 1, 0},

	// Extensions
	OpAbortMsg:  {"ABORTMSG", 0, 0},
	OpAssertMsg: {"ASSERTMSG", 0, 0},
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}
