package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack and control
const (
	OpNop        Opcode = 0x00 // no operation (note anchor)
	OpPush       Opcode = 0x01 // push undefined
	OpPopv       Opcode = 0x02 // pop into the script's completion value
	OpPop        Opcode = 0x03 // discard top of stack
	OpPopN       Opcode = 0x04 // discard n values (16-bit count)
	OpDup        Opcode = 0x05 // duplicate top of stack
	OpDup2       Opcode = 0x06 // duplicate top two values
	OpSwap       Opcode = 0x07 // swap top two values
	OpEnterWith  Opcode = 0x08 // push the object on top onto the scope chain
	OpLeaveWith  Opcode = 0x09 // pop the with scope
	OpReturn     Opcode = 0x0A // return top of stack
	OpSetRval    Opcode = 0x0B // pop into the return value slot
	OpRetRval    Opcode = 0x0C // return the return value slot
	OpStop       Opcode = 0x0D // end of script
	OpDebugger   Opcode = 0x0E // debugger statement
	OpGenerator  Opcode = 0x0F // first op of a generator function
	OpYield      Opcode = 0x10 // yield top of stack, push sent value
	OpArguments  Opcode = 0x11 // push the arguments object
	OpThrow      Opcode = 0x12 // throw top of stack
	OpThrowing   Opcode = 0x13 // rethrow a pending exception after a guard miss
	OpException  Opcode = 0x14 // push the pending exception
	OpTry        Opcode = 0x15 // marks the start of a try block
	OpFinally    Opcode = 0x16 // finally entry: pushes [exception, retsub pc]
	OpRetSub     Opcode = 0x17 // return from a finally subroutine
	OpLength     Opcode = 0x18 // replace top with its length property
	OpCondSwitch Opcode = 0x19 // marks an unoptimized switch
)

// Jumps (16-bit signed big-endian offset from the opcode)
const (
	OpGoto         Opcode = 0x20 // unconditional jump
	OpIfEq         Opcode = 0x21 // pop, jump if false
	OpIfNe         Opcode = 0x22 // pop, jump if true
	OpOr           Opcode = 0x23 // jump if true leaving value, else pop
	OpAnd          Opcode = 0x24 // jump if false leaving value, else pop
	OpGosub        Opcode = 0x25 // call a finally subroutine
	OpCase         Opcode = 0x26 // pop case value, jump if strictly equal to discriminant
	OpDefault      Opcode = 0x27 // pop discriminant and jump
	OpBackpatch    Opcode = 0x28 // placeholder; operand is a delta to the previous chain link
	OpBackpatchPop Opcode = 0x29 // placeholder that pops like OR/AND
	OpTableSwitch  Opcode = 0x2A // jump table: default, low, high, offsets
	OpLookupSwitch Opcode = 0x2B // lookup table: default, npairs, (atom, offset) pairs
)

// Extended jumps (32-bit signed big-endian offset)
const (
	OpGotoX         Opcode = 0x30
	OpIfEqX         Opcode = 0x31
	OpIfNeX         Opcode = 0x32
	OpOrX           Opcode = 0x33
	OpAndX          Opcode = 0x34
	OpGosubX        Opcode = 0x35
	OpCaseX         Opcode = 0x36
	OpDefaultX      Opcode = 0x37
	OpTableSwitchX  Opcode = 0x38
	OpLookupSwitchX Opcode = 0x39
)

// Operators
const (
	OpBitOr      Opcode = 0x40
	OpBitXor     Opcode = 0x41
	OpBitAnd     Opcode = 0x42
	OpEq         Opcode = 0x43
	OpNe         Opcode = 0x44
	OpStrictEq   Opcode = 0x45
	OpStrictNe   Opcode = 0x46
	OpLt         Opcode = 0x47
	OpLe         Opcode = 0x48
	OpGt         Opcode = 0x49
	OpGe         Opcode = 0x4A
	OpLsh        Opcode = 0x4B
	OpRsh        Opcode = 0x4C
	OpUrsh       Opcode = 0x4D
	OpAdd        Opcode = 0x4E
	OpSub        Opcode = 0x4F
	OpMul        Opcode = 0x50
	OpDiv        Opcode = 0x51
	OpMod        Opcode = 0x52
	OpIn         Opcode = 0x53
	OpInstanceOf Opcode = 0x54
	OpNot        Opcode = 0x55
	OpBitNot     Opcode = 0x56
	OpNeg        Opcode = 0x57
	OpPos        Opcode = 0x58
	OpTypeOf     Opcode = 0x59 // typeof of a value
	OpTypeOfExpr Opcode = 0x5A // typeof of an unresolvable-safe expression
	OpVoid       Opcode = 0x5B
)

// Literals
const (
	OpZero   Opcode = 0x60
	OpOne    Opcode = 0x61
	OpNull   Opcode = 0x62
	OpThis   Opcode = 0x63
	OpFalse  Opcode = 0x64
	OpTrue   Opcode = 0x65
	OpInt8   Opcode = 0x66 // 8-bit signed immediate
	OpUint16 Opcode = 0x67 // 16-bit unsigned immediate
	OpUint24 Opcode = 0x68 // 24-bit unsigned immediate
	OpInt32  Opcode = 0x69 // 32-bit signed immediate
	OpDouble Opcode = 0x6A // number atom
	OpString Opcode = 0x6B // string atom
	OpObject Opcode = 0x6C // nested object literal
	OpRegExp Opcode = 0x6D // regexp literal (regexp list index)
	OpHole   Opcode = 0x6E // array hole
)

// Names, properties and elements (atom operand unless noted)
const (
	OpName      Opcode = 0x70
	OpBindName  Opcode = 0x71
	OpSetName   Opcode = 0x72
	OpDelName   Opcode = 0x73
	OpIncName   Opcode = 0x74
	OpDecName   Opcode = 0x75
	OpNameInc   Opcode = 0x76
	OpNameDec   Opcode = 0x77
	OpGetProp   Opcode = 0x78
	OpSetProp   Opcode = 0x79
	OpDelProp   Opcode = 0x7A
	OpIncProp   Opcode = 0x7B
	OpDecProp   Opcode = 0x7C
	OpPropInc   Opcode = 0x7D
	OpPropDec   Opcode = 0x7E
	OpGetElem   Opcode = 0x7F // no operand
	OpSetElem   Opcode = 0x80 // no operand
	OpDelElem   Opcode = 0x81 // no operand
	OpIncElem   Opcode = 0x82 // no operand
	OpDecElem   Opcode = 0x83 // no operand
	OpElemInc   Opcode = 0x84 // no operand
	OpElemDec   Opcode = 0x85 // no operand
	OpCallName  Opcode = 0x86 // push callee and null this
	OpCallProp  Opcode = 0x87 // push method and its object
	OpCallElem  Opcode = 0x88 // no operand
	OpCall      Opcode = 0x89 // 16-bit argc
	OpNew       Opcode = 0x8A // 16-bit argc
	OpSetConst  Opcode = 0x8B // initialize a top-level const
	OpEnumElem  Opcode = 0x8C // store an enumerated value into obj[id]
	OpEnumConst Opcode = 0x8D // as ENUMELEM for const destructuring
)

// Slots
const (
	OpGetArg      Opcode = 0x90 // 16-bit argument slot
	OpSetArg      Opcode = 0x91
	OpIncArg      Opcode = 0x92
	OpDecArg      Opcode = 0x93
	OpArgInc      Opcode = 0x94
	OpArgDec      Opcode = 0x95
	OpCallArg     Opcode = 0x96
	OpGetLocal    Opcode = 0x97 // 16-bit local slot
	OpSetLocal    Opcode = 0x98
	OpSetLocalPop Opcode = 0x99
	OpIncLocal    Opcode = 0x9A
	OpDecLocal    Opcode = 0x9B
	OpLocalInc    Opcode = 0x9C
	OpLocalDec    Opcode = 0x9D
	OpCallLocal   Opcode = 0x9E
	OpGetGVar     Opcode = 0x9F // atom operand naming a declared global
	OpSetGVar     Opcode = 0xA0
	OpIncGVar     Opcode = 0xA1
	OpDecGVar     Opcode = 0xA2
	OpGVarInc     Opcode = 0xA3
	OpGVarDec     Opcode = 0xA4
	OpCallGVar    Opcode = 0xA5
	OpGetUpvar    Opcode = 0xA6 // 16-bit upvar index
	OpCallUpvar   Opcode = 0xA7
)

// Definitions and literals under construction
const (
	OpDefVar      Opcode = 0xB0 // atom
	OpDefConst    Opcode = 0xB1 // atom
	OpDefFun      Opcode = 0xB2 // object
	OpDefLocalFun Opcode = 0xB3 // 16-bit slot + object
	OpLambda      Opcode = 0xB4 // object
	OpNewInit     Opcode = 0xB5 // 8-bit kind: 0 array, 1 object
	OpEndInit     Opcode = 0xB6
	OpInitProp    Opcode = 0xB7 // atom
	OpInitElem    Opcode = 0xB8
	OpGetter      Opcode = 0xB9 // prefix for accessor INITPROP/INITELEM
	OpSetter      Opcode = 0xBA
)

// Iteration and blocks
const (
	OpIter           Opcode = 0xC0 // 8-bit flags
	OpNextIter       Opcode = 0xC1
	OpEndIter        Opcode = 0xC2
	OpForName        Opcode = 0xC3 // atom
	OpForProp        Opcode = 0xC4 // atom
	OpForElem        Opcode = 0xC5
	OpForArg         Opcode = 0xC6 // 16-bit slot
	OpForLocal       Opcode = 0xC7 // 16-bit slot
	OpEnterBlock     Opcode = 0xC8 // block object
	OpLeaveBlock     Opcode = 0xC9 // 16-bit count
	OpLeaveBlockExpr Opcode = 0xCA // 16-bit count, keeps the result
)

// Index base prefixes
const (
	OpIndexBase  Opcode = 0xD0 // 8-bit base multiplier
	OpIndexBase1 Opcode = 0xD1
	OpIndexBase2 Opcode = 0xD2
	OpIndexBase3 Opcode = 0xD3
	OpResetBase  Opcode = 0xD4
	OpResetBase0 Opcode = 0xD5
)

// Iterator flags for OpIter.
const (
	IterEnumerate = 0x1
	IterForEach   = 0x2
)

// ---------------------------------------------------------------------------
// Operand encodings
// ---------------------------------------------------------------------------

// Format describes an opcode's immediate operand layout.
type Format uint8

const (
	FormatByte Format = iota
	FormatJump
	FormatJumpX
	FormatTableSwitch
	FormatTableSwitchX
	FormatLookupSwitch
	FormatLookupSwitchX
	FormatAtom
	FormatObject
	FormatRegExp
	FormatUint8
	FormatUint16
	FormatUint24
	FormatInt8
	FormatInt32
	FormatArg
	FormatLocal
	FormatSlotObject
)

// Flags refine an opcode's format.
type Flags uint16

const (
	FlagBackpatch Flags = 1 << iota // jump operand may hold a backpatch delta
	FlagIndexed                     // operand is a literal index subject to index base prefixes
	FlagName                        // operates on a name
	FlagProp                        // operates on a property
	FlagElem                        // operates on an element
	FlagSet                         // stores
	FlagDel                         // deletes
	FlagIncDec                      // increments or decrements
	FlagPost                        // postfix increment or decrement
)

const (
	JumpOffsetLen  = 2
	JumpXOffsetLen = 4
	JumpOffsetMin  = -1 << 15
	JumpOffsetMax  = 1<<15 - 1
	JumpXOffsetMin = -1 << 31
	JumpXOffsetMax = 1<<31 - 1

	IndexLen   = 2
	Uint16Len  = 2
	IndexLimit = 1 << 24
	SlotLimit  = 1 << 16
	ArgcLimit  = 1 << 16
	// ArrayInitLimit bounds the number of values one group assignment can push.
	ArrayInitLimit = 1 << 16
)

// VariableLength marks switch opcodes whose length is read from the bytecode.
const VariableLength = -1

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo describes an opcode's encoding and stack effect. Uses < 0 means
// the count is read from the operand; Defs < 0 means it comes from the block
// object the instruction enters.
type OpcodeInfo struct {
	Name   string
	Length int
	Uses   int
	Defs   int
	Format Format
	Flags  Flags
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:        {"NOP", 1, 0, 0, FormatByte, 0},
	OpPush:       {"PUSH", 1, 0, 1, FormatByte, 0},
	OpPopv:       {"POPV", 1, 1, 0, FormatByte, 0},
	OpPop:        {"POP", 1, 1, 0, FormatByte, 0},
	OpPopN:       {"POPN", 3, -1, 0, FormatUint16, 0},
	OpDup:        {"DUP", 1, 1, 2, FormatByte, 0},
	OpDup2:       {"DUP2", 1, 2, 4, FormatByte, 0},
	OpSwap:       {"SWAP", 1, 2, 2, FormatByte, 0},
	OpEnterWith:  {"ENTERWITH", 1, 1, 1, FormatByte, 0},
	OpLeaveWith:  {"LEAVEWITH", 1, 1, 0, FormatByte, 0},
	OpReturn:     {"RETURN", 1, 1, 0, FormatByte, 0},
	OpSetRval:    {"SETRVAL", 1, 1, 0, FormatByte, 0},
	OpRetRval:    {"RETRVAL", 1, 0, 0, FormatByte, 0},
	OpStop:       {"STOP", 1, 0, 0, FormatByte, 0},
	OpDebugger:   {"DEBUGGER", 1, 0, 0, FormatByte, 0},
	OpGenerator:  {"GENERATOR", 1, 0, 0, FormatByte, 0},
	OpYield:      {"YIELD", 1, 1, 1, FormatByte, 0},
	OpArguments:  {"ARGUMENTS", 1, 0, 1, FormatByte, 0},
	OpThrow:      {"THROW", 1, 1, 0, FormatByte, 0},
	OpThrowing:   {"THROWING", 1, 1, 0, FormatByte, 0},
	OpException:  {"EXCEPTION", 1, 0, 1, FormatByte, 0},
	OpTry:        {"TRY", 1, 0, 0, FormatByte, 0},
	OpFinally:    {"FINALLY", 1, 0, 2, FormatByte, 0},
	OpRetSub:     {"RETSUB", 1, 2, 0, FormatByte, 0},
	OpLength:     {"LENGTH", 1, 1, 1, FormatByte, 0},
	OpCondSwitch: {"CONDSWITCH", 1, 0, 0, FormatByte, 0},

	OpGoto:         {"GOTO", 3, 0, 0, FormatJump, 0},
	OpIfEq:         {"IFEQ", 3, 1, 0, FormatJump, 0},
	OpIfNe:         {"IFNE", 3, 1, 0, FormatJump, 0},
	OpOr:           {"OR", 3, 1, 0, FormatJump, 0},
	OpAnd:          {"AND", 3, 1, 0, FormatJump, 0},
	OpGosub:        {"GOSUB", 3, 0, 0, FormatJump, 0},
	OpCase:         {"CASE", 3, 1, 0, FormatJump, 0},
	OpDefault:      {"DEFAULT", 3, 1, 0, FormatJump, 0},
	OpBackpatch:    {"BACKPATCH", 3, 0, 0, FormatJump, FlagBackpatch},
	OpBackpatchPop: {"BACKPATCH_POP", 3, 1, 0, FormatJump, FlagBackpatch},
	OpTableSwitch:  {"TABLESWITCH", VariableLength, 1, 0, FormatTableSwitch, 0},
	OpLookupSwitch: {"LOOKUPSWITCH", VariableLength, 1, 0, FormatLookupSwitch, 0},

	OpGotoX:         {"GOTOX", 5, 0, 0, FormatJumpX, 0},
	OpIfEqX:         {"IFEQX", 5, 1, 0, FormatJumpX, 0},
	OpIfNeX:         {"IFNEX", 5, 1, 0, FormatJumpX, 0},
	OpOrX:           {"ORX", 5, 1, 0, FormatJumpX, 0},
	OpAndX:          {"ANDX", 5, 1, 0, FormatJumpX, 0},
	OpGosubX:        {"GOSUBX", 5, 0, 0, FormatJumpX, 0},
	OpCaseX:         {"CASEX", 5, 1, 0, FormatJumpX, 0},
	OpDefaultX:      {"DEFAULTX", 5, 1, 0, FormatJumpX, 0},
	OpTableSwitchX:  {"TABLESWITCHX", VariableLength, 1, 0, FormatTableSwitchX, 0},
	OpLookupSwitchX: {"LOOKUPSWITCHX", VariableLength, 1, 0, FormatLookupSwitchX, 0},

	OpBitOr:      {"BITOR", 1, 2, 1, FormatByte, 0},
	OpBitXor:     {"BITXOR", 1, 2, 1, FormatByte, 0},
	OpBitAnd:     {"BITAND", 1, 2, 1, FormatByte, 0},
	OpEq:         {"EQ", 1, 2, 1, FormatByte, 0},
	OpNe:         {"NE", 1, 2, 1, FormatByte, 0},
	OpStrictEq:   {"STRICTEQ", 1, 2, 1, FormatByte, 0},
	OpStrictNe:   {"STRICTNE", 1, 2, 1, FormatByte, 0},
	OpLt:         {"LT", 1, 2, 1, FormatByte, 0},
	OpLe:         {"LE", 1, 2, 1, FormatByte, 0},
	OpGt:         {"GT", 1, 2, 1, FormatByte, 0},
	OpGe:         {"GE", 1, 2, 1, FormatByte, 0},
	OpLsh:        {"LSH", 1, 2, 1, FormatByte, 0},
	OpRsh:        {"RSH", 1, 2, 1, FormatByte, 0},
	OpUrsh:       {"URSH", 1, 2, 1, FormatByte, 0},
	OpAdd:        {"ADD", 1, 2, 1, FormatByte, 0},
	OpSub:        {"SUB", 1, 2, 1, FormatByte, 0},
	OpMul:        {"MUL", 1, 2, 1, FormatByte, 0},
	OpDiv:        {"DIV", 1, 2, 1, FormatByte, 0},
	OpMod:        {"MOD", 1, 2, 1, FormatByte, 0},
	OpIn:         {"IN", 1, 2, 1, FormatByte, 0},
	OpInstanceOf: {"INSTANCEOF", 1, 2, 1, FormatByte, 0},
	OpNot:        {"NOT", 1, 1, 1, FormatByte, 0},
	OpBitNot:     {"BITNOT", 1, 1, 1, FormatByte, 0},
	OpNeg:        {"NEG", 1, 1, 1, FormatByte, 0},
	OpPos:        {"POS", 1, 1, 1, FormatByte, 0},
	OpTypeOf:     {"TYPEOF", 1, 1, 1, FormatByte, 0},
	OpTypeOfExpr: {"TYPEOFEXPR", 1, 1, 1, FormatByte, 0},
	OpVoid:       {"VOID", 1, 1, 1, FormatByte, 0},

	OpZero:   {"ZERO", 1, 0, 1, FormatByte, 0},
	OpOne:    {"ONE", 1, 0, 1, FormatByte, 0},
	OpNull:   {"NULL", 1, 0, 1, FormatByte, 0},
	OpThis:   {"THIS", 1, 0, 1, FormatByte, 0},
	OpFalse:  {"FALSE", 1, 0, 1, FormatByte, 0},
	OpTrue:   {"TRUE", 1, 0, 1, FormatByte, 0},
	OpInt8:   {"INT8", 2, 0, 1, FormatInt8, 0},
	OpUint16: {"UINT16", 3, 0, 1, FormatUint16, 0},
	OpUint24: {"UINT24", 4, 0, 1, FormatUint24, 0},
	OpInt32:  {"INT32", 5, 0, 1, FormatInt32, 0},
	OpDouble: {"DOUBLE", 3, 0, 1, FormatAtom, FlagIndexed},
	OpString: {"STRING", 3, 0, 1, FormatAtom, FlagIndexed},
	OpObject: {"OBJECT", 3, 0, 1, FormatObject, FlagIndexed},
	OpRegExp: {"REGEXP", 3, 0, 1, FormatRegExp, FlagIndexed},
	OpHole:   {"HOLE", 1, 0, 1, FormatByte, 0},

	OpName:      {"NAME", 3, 0, 1, FormatAtom, FlagIndexed | FlagName},
	OpBindName:  {"BINDNAME", 3, 0, 1, FormatAtom, FlagIndexed | FlagName},
	OpSetName:   {"SETNAME", 3, 2, 1, FormatAtom, FlagIndexed | FlagName | FlagSet},
	OpDelName:   {"DELNAME", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagDel},
	OpIncName:   {"INCNAME", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagIncDec},
	OpDecName:   {"DECNAME", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagIncDec},
	OpNameInc:   {"NAMEINC", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagIncDec | FlagPost},
	OpNameDec:   {"NAMEDEC", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagIncDec | FlagPost},
	OpGetProp:   {"GETPROP", 3, 1, 1, FormatAtom, FlagIndexed | FlagProp},
	OpSetProp:   {"SETPROP", 3, 2, 1, FormatAtom, FlagIndexed | FlagProp | FlagSet},
	OpDelProp:   {"DELPROP", 3, 1, 1, FormatAtom, FlagIndexed | FlagProp | FlagDel},
	OpIncProp:   {"INCPROP", 3, 1, 1, FormatAtom, FlagIndexed | FlagProp | FlagIncDec},
	OpDecProp:   {"DECPROP", 3, 1, 1, FormatAtom, FlagIndexed | FlagProp | FlagIncDec},
	OpPropInc:   {"PROPINC", 3, 1, 1, FormatAtom, FlagIndexed | FlagProp | FlagIncDec | FlagPost},
	OpPropDec:   {"PROPDEC", 3, 1, 1, FormatAtom, FlagIndexed | FlagProp | FlagIncDec | FlagPost},
	OpGetElem:   {"GETELEM", 1, 2, 1, FormatByte, FlagElem},
	OpSetElem:   {"SETELEM", 1, 3, 1, FormatByte, FlagElem | FlagSet},
	OpDelElem:   {"DELELEM", 1, 2, 1, FormatByte, FlagElem | FlagDel},
	OpIncElem:   {"INCELEM", 1, 2, 1, FormatByte, FlagElem | FlagIncDec},
	OpDecElem:   {"DECELEM", 1, 2, 1, FormatByte, FlagElem | FlagIncDec},
	OpElemInc:   {"ELEMINC", 1, 2, 1, FormatByte, FlagElem | FlagIncDec | FlagPost},
	OpElemDec:   {"ELEMDEC", 1, 2, 1, FormatByte, FlagElem | FlagIncDec | FlagPost},
	OpCallName:  {"CALLNAME", 3, 0, 2, FormatAtom, FlagIndexed | FlagName},
	OpCallProp:  {"CALLPROP", 3, 1, 2, FormatAtom, FlagIndexed | FlagProp},
	OpCallElem:  {"CALLELEM", 1, 2, 2, FormatByte, FlagElem},
	OpCall:      {"CALL", 3, -1, 1, FormatUint16, 0},
	OpNew:       {"NEW", 3, -1, 1, FormatUint16, 0},
	OpSetConst:  {"SETCONST", 3, 1, 1, FormatAtom, FlagIndexed | FlagName | FlagSet},
	OpEnumElem:  {"ENUMELEM", 1, 3, 0, FormatByte, FlagElem | FlagSet},
	OpEnumConst: {"ENUMCONSTELEM", 1, 3, 0, FormatByte, FlagElem | FlagSet},

	OpGetArg:      {"GETARG", 3, 0, 1, FormatArg, FlagName},
	OpSetArg:      {"SETARG", 3, 1, 1, FormatArg, FlagName | FlagSet},
	OpIncArg:      {"INCARG", 3, 0, 1, FormatArg, FlagName | FlagIncDec},
	OpDecArg:      {"DECARG", 3, 0, 1, FormatArg, FlagName | FlagIncDec},
	OpArgInc:      {"ARGINC", 3, 0, 1, FormatArg, FlagName | FlagIncDec | FlagPost},
	OpArgDec:      {"ARGDEC", 3, 0, 1, FormatArg, FlagName | FlagIncDec | FlagPost},
	OpCallArg:     {"CALLARG", 3, 0, 2, FormatArg, FlagName},
	OpGetLocal:    {"GETLOCAL", 3, 0, 1, FormatLocal, FlagName},
	OpSetLocal:    {"SETLOCAL", 3, 1, 1, FormatLocal, FlagName | FlagSet},
	OpSetLocalPop: {"SETLOCALPOP", 3, 1, 0, FormatLocal, FlagName | FlagSet},
	OpIncLocal:    {"INCLOCAL", 3, 0, 1, FormatLocal, FlagName | FlagIncDec},
	OpDecLocal:    {"DECLOCAL", 3, 0, 1, FormatLocal, FlagName | FlagIncDec},
	OpLocalInc:    {"LOCALINC", 3, 0, 1, FormatLocal, FlagName | FlagIncDec | FlagPost},
	OpLocalDec:    {"LOCALDEC", 3, 0, 1, FormatLocal, FlagName | FlagIncDec | FlagPost},
	OpCallLocal:   {"CALLLOCAL", 3, 0, 2, FormatLocal, FlagName},
	OpGetGVar:     {"GETGVAR", 3, 0, 1, FormatAtom, FlagIndexed | FlagName},
	OpSetGVar:     {"SETGVAR", 3, 1, 1, FormatAtom, FlagIndexed | FlagName | FlagSet},
	OpIncGVar:     {"INCGVAR", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagIncDec},
	OpDecGVar:     {"DECGVAR", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagIncDec},
	OpGVarInc:     {"GVARINC", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagIncDec | FlagPost},
	OpGVarDec:     {"GVARDEC", 3, 0, 1, FormatAtom, FlagIndexed | FlagName | FlagIncDec | FlagPost},
	OpCallGVar:    {"CALLGVAR", 3, 0, 2, FormatAtom, FlagIndexed | FlagName},
	OpGetUpvar:    {"GETUPVAR", 3, 0, 1, FormatUint16, FlagName},
	OpCallUpvar:   {"CALLUPVAR", 3, 0, 2, FormatUint16, FlagName},

	OpDefVar:      {"DEFVAR", 3, 0, 0, FormatAtom, FlagIndexed},
	OpDefConst:    {"DEFCONST", 3, 0, 0, FormatAtom, FlagIndexed},
	OpDefFun:      {"DEFFUN", 3, 0, 0, FormatObject, FlagIndexed},
	OpDefLocalFun: {"DEFLOCALFUN", 5, 0, 0, FormatSlotObject, FlagIndexed},
	OpLambda:      {"LAMBDA", 3, 0, 1, FormatObject, FlagIndexed},
	OpNewInit:     {"NEWINIT", 2, 0, 1, FormatUint8, 0},
	OpEndInit:     {"ENDINIT", 1, 0, 0, FormatByte, 0},
	OpInitProp:    {"INITPROP", 3, 1, 0, FormatAtom, FlagIndexed | FlagProp | FlagSet},
	OpInitElem:    {"INITELEM", 1, 2, 0, FormatByte, FlagElem | FlagSet},
	OpGetter:      {"GETTER", 1, 0, 0, FormatByte, 0},
	OpSetter:      {"SETTER", 1, 0, 0, FormatByte, 0},

	OpIter:           {"ITER", 2, 1, 2, FormatUint8, 0},
	OpNextIter:       {"NEXTITER", 1, 0, 1, FormatByte, 0},
	OpEndIter:        {"ENDITER", 1, 2, 0, FormatByte, 0},
	OpForName:        {"FORNAME", 3, 0, 0, FormatAtom, FlagIndexed | FlagName | FlagSet},
	OpForProp:        {"FORPROP", 3, 1, 0, FormatAtom, FlagIndexed | FlagProp | FlagSet},
	OpForElem:        {"FORELEM", 1, 0, 1, FormatByte, FlagElem},
	OpForArg:         {"FORARG", 3, 0, 0, FormatArg, FlagName | FlagSet},
	OpForLocal:       {"FORLOCAL", 3, 0, 0, FormatLocal, FlagName | FlagSet},
	OpEnterBlock:     {"ENTERBLOCK", 3, 0, -1, FormatObject, FlagIndexed},
	OpLeaveBlock:     {"LEAVEBLOCK", 3, -1, 0, FormatUint16, 0},
	OpLeaveBlockExpr: {"LEAVEBLOCKEXPR", 3, -1, 1, FormatUint16, 0},

	OpIndexBase:  {"INDEXBASE", 2, 0, 0, FormatUint8, 0},
	OpIndexBase1: {"INDEXBASE1", 1, 0, 0, FormatByte, 0},
	OpIndexBase2: {"INDEXBASE2", 1, 0, 0, FormatByte, 0},
	OpIndexBase3: {"INDEXBASE3", 1, 0, 0, FormatByte, 0},
	OpResetBase:  {"RESETBASE", 1, 0, 0, FormatByte, 0},
	OpResetBase0: {"RESETBASE0", 1, 0, 0, FormatByte, 0},
}

// Info returns metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), Length: 1}
}

// Name returns the mnemonic name of an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements fmt.Stringer.
func (op Opcode) String() string {
	return op.Name()
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// IsJump reports whether op carries a single short jump operand.
func (op Opcode) IsJump() bool {
	return op.Info().Format == FormatJump
}

// IsExtendedJump reports whether op uses 32-bit jump operands.
func (op Opcode) IsExtendedJump() bool {
	switch op.Info().Format {
	case FormatJumpX, FormatTableSwitchX, FormatLookupSwitchX:
		return true
	}
	return false
}

// Extended returns the 32-bit operand form of a span-dependent opcode.
func (op Opcode) Extended() (Opcode, bool) {
	switch op {
	case OpGoto:
		return OpGotoX, true
	case OpIfEq:
		return OpIfEqX, true
	case OpIfNe:
		return OpIfNeX, true
	case OpOr:
		return OpOrX, true
	case OpAnd:
		return OpAndX, true
	case OpGosub:
		return OpGosubX, true
	case OpCase:
		return OpCaseX, true
	case OpDefault:
		return OpDefaultX, true
	case OpTableSwitch:
		return OpTableSwitchX, true
	case OpLookupSwitch:
		return OpLookupSwitchX, true
	}
	return op, false
}

// ---------------------------------------------------------------------------
// Immediate operand accessors
//
// Jump accessors take the pc of the byte preceding the operand, matching the
// opcode position for simple jumps. Switch table entries are addressed the
// same way: the entry's operand starts at pc+1.
// ---------------------------------------------------------------------------

// JumpOffset reads a 16-bit signed jump operand.
func JumpOffset(code []byte, pc int) int {
	return int(int16(binary.BigEndian.Uint16(code[pc+1:])))
}

// SetJumpOffset writes a 16-bit signed jump operand.
func SetJumpOffset(code []byte, pc int, off int) {
	binary.BigEndian.PutUint16(code[pc+1:], uint16(int16(off)))
}

// JumpXOffset reads a 32-bit signed jump operand.
func JumpXOffset(code []byte, pc int) int {
	return int(int32(binary.BigEndian.Uint32(code[pc+1:])))
}

// SetJumpXOffset writes a 32-bit signed jump operand.
func SetJumpXOffset(code []byte, pc int, off int) {
	binary.BigEndian.PutUint32(code[pc+1:], uint32(int32(off)))
}

// Uint16At reads the big-endian 16-bit value at pc+1.
func Uint16At(code []byte, pc int) int {
	return int(binary.BigEndian.Uint16(code[pc+1:]))
}

// SetUint16At writes a big-endian 16-bit value at pc+1.
func SetUint16At(code []byte, pc int, v int) {
	binary.BigEndian.PutUint16(code[pc+1:], uint16(v))
}

// Uint24At reads the big-endian 24-bit value at pc+1.
func Uint24At(code []byte, pc int) int {
	return int(code[pc+1])<<16 | int(code[pc+2])<<8 | int(code[pc+3])
}

// InstructionLength returns the byte length of the instruction at pc.
func InstructionLength(code []byte, pc int) int {
	op := Opcode(code[pc])
	info := op.Info()
	if info.Length != VariableLength {
		return info.Length
	}
	jmplen := JumpOffsetLen
	if op.IsExtendedJump() {
		jmplen = JumpXOffsetLen
	}
	switch info.Format {
	case FormatTableSwitch, FormatTableSwitchX:
		p := pc + jmplen
		low := JumpOffset(code, p)
		p += JumpOffsetLen
		high := JumpOffset(code, p)
		n := high - low + 1
		if n < 0 {
			n = 0
		}
		return 1 + jmplen + 2*JumpOffsetLen + n*jmplen
	case FormatLookupSwitch, FormatLookupSwitchX:
		npairs := Uint16At(code, pc+jmplen)
		return 1 + jmplen + IndexLen + npairs*(IndexLen+jmplen)
	}
	return 1
}
