package types

import (
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Opcode is a JVM instruction opcode.
type Opcode int

// Opcodes the analysis distinguishes. Anything else is carried through as
// OpcodeClassOther.
const (
	Nop             Opcode = 0
	AConstNull      Opcode = 1
	IConstM1        Opcode = 2
	IConst0         Opcode = 3
	IConst1         Opcode = 4
	IConst2         Opcode = 5
	IConst3         Opcode = 6
	IConst4         Opcode = 7
	IConst5         Opcode = 8
	BIPush          Opcode = 16
	SIPush          Opcode = 17
	Ldc             Opcode = 18
	ILoad           Opcode = 21
	LLoad           Opcode = 22
	FLoad           Opcode = 23
	DLoad           Opcode = 24
	ALoad           Opcode = 25
	IStore          Opcode = 54
	LStore          Opcode = 55
	FStore          Opcode = 56
	DStore          Opcode = 57
	AStore          Opcode = 58
	Pop             Opcode = 87
	Dup             Opcode = 89
	IAdd            Opcode = 96
	ISub            Opcode = 100
	IMul            Opcode = 104
	IInc            Opcode = 132
	IfEq            Opcode = 153
	IfNe            Opcode = 154
	IfLt            Opcode = 155
	IfGe            Opcode = 156
	IfGt            Opcode = 157
	IfLe            Opcode = 158
	IfICmpEq        Opcode = 159
	IfICmpNe        Opcode = 160
	IfICmpLt        Opcode = 161
	IfICmpGe        Opcode = 162
	IfICmpGt        Opcode = 163
	IfICmpLe        Opcode = 164
	IfACmpEq        Opcode = 165
	IfACmpNe        Opcode = 166
	Goto            Opcode = 167
	TableSwitch     Opcode = 170
	LookupSwitch    Opcode = 171
	IReturn         Opcode = 172
	LReturn         Opcode = 173
	FReturn         Opcode = 174
	DReturn         Opcode = 175
	AReturn         Opcode = 176
	Return          Opcode = 177
	GetStatic       Opcode = 178
	PutStatic       Opcode = 179
	GetField        Opcode = 180
	PutField        Opcode = 181
	InvokeVirtual   Opcode = 182
	InvokeSpecial   Opcode = 183
	InvokeStatic    Opcode = 184
	InvokeInterface Opcode = 185
	InvokeDynamic   Opcode = 186
	New             Opcode = 187
	AThrow          Opcode = 191
	IfNull          Opcode = 198
	IfNonNull       Opcode = 199
)

var opcodeNames = map[Opcode]string{
	Nop: "NOP", AConstNull: "ACONST_NULL", IConstM1: "ICONST_M1",
	IConst0: "ICONST_0", IConst1: "ICONST_1", IConst2: "ICONST_2",
	IConst3: "ICONST_3", IConst4: "ICONST_4", IConst5: "ICONST_5",
	BIPush: "BIPUSH", SIPush: "SIPUSH", Ldc: "LDC",
	ILoad: "ILOAD", LLoad: "LLOAD", FLoad: "FLOAD", DLoad: "DLOAD", ALoad: "ALOAD",
	IStore: "ISTORE", LStore: "LSTORE", FStore: "FSTORE", DStore: "DSTORE", AStore: "ASTORE",
	Pop: "POP", Dup: "DUP", IAdd: "IADD", ISub: "ISUB", IMul: "IMUL", IInc: "IINC",
	IfEq: "IFEQ", IfNe: "IFNE", IfLt: "IFLT", IfGe: "IFGE", IfGt: "IFGT", IfLe: "IFLE",
	IfICmpEq: "IF_ICMPEQ", IfICmpNe: "IF_ICMPNE", IfICmpLt: "IF_ICMPLT",
	IfICmpGe: "IF_ICMPGE", IfICmpGt: "IF_ICMPGT", IfICmpLe: "IF_ICMPLE",
	IfACmpEq: "IF_ACMPEQ", IfACmpNe: "IF_ACMPNE", Goto: "GOTO",
	TableSwitch: "TABLESWITCH", LookupSwitch: "LOOKUPSWITCH",
	IReturn: "IRETURN", LReturn: "LRETURN", FReturn: "FRETURN", DReturn: "DRETURN",
	AReturn: "ARETURN", Return: "RETURN",
	GetStatic: "GETSTATIC", PutStatic: "PUTSTATIC", GetField: "GETFIELD", PutField: "PUTFIELD",
	InvokeVirtual: "INVOKEVIRTUAL", InvokeSpecial: "INVOKESPECIAL",
	InvokeStatic: "INVOKESTATIC", InvokeInterface: "INVOKEINTERFACE",
	InvokeDynamic: "INVOKEDYNAMIC", New: "NEW", AThrow: "ATHROW",
	IfNull: "IFNULL", IfNonNull: "IFNONNULL",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return strconv.Itoa(int(o))
}

// ParseOpcode accepts a mnemonic (case insensitive) or a decimal opcode.
func ParseOpcode(s string) (Opcode, error) {
	s = strings.TrimSpace(s)
	if op, ok := opcodesByName[strings.ToUpper(s)]; ok {
		return op, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("unknown opcode %q", s)
	}
	return Opcode(n), nil
}

// MarshalText renders the mnemonic so class documents stay readable.
func (o Opcode) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Opcode) UnmarshalText(text []byte) error {
	op, err := ParseOpcode(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// UnmarshalJSON accepts a mnemonic string or a bare opcode number.
func (o *Opcode) UnmarshalJSON(data []byte) error {
	return o.UnmarshalText(bytes.Trim(data, `"`))
}

// OpcodeClass groups opcodes by their data-flow effect.
type OpcodeClass string

const (
	OpcodeClassOther      OpcodeClass = "other"
	OpcodeClassLoad       OpcodeClass = "load"        // Reads a local slot
	OpcodeClassStore      OpcodeClass = "store"       // Writes a local slot
	OpcodeClassIncrement  OpcodeClass = "increment"   // Reads and writes a local slot
	OpcodeClassFieldRead  OpcodeClass = "field_read"  // GETFIELD / GETSTATIC
	OpcodeClassFieldWrite OpcodeClass = "field_write" // PUTFIELD / PUTSTATIC
	OpcodeClassInvoke     OpcodeClass = "invoke"
	OpcodeClassBranch     OpcodeClass = "branch"
	OpcodeClassReturn     OpcodeClass = "return" // Returns and throws
)

// Class returns the data-flow class of the opcode.
func (o Opcode) Class() OpcodeClass {
	switch {
	case o >= ILoad && o <= ALoad:
		return OpcodeClassLoad
	case o >= IStore && o <= AStore:
		return OpcodeClassStore
	case o == IInc:
		return OpcodeClassIncrement
	case o == GetField || o == GetStatic:
		return OpcodeClassFieldRead
	case o == PutField || o == PutStatic:
		return OpcodeClassFieldWrite
	case o >= InvokeVirtual && o <= InvokeDynamic:
		return OpcodeClassInvoke
	case (o >= IfEq && o <= LookupSwitch) || o == IfNull || o == IfNonNull:
		return OpcodeClassBranch
	case (o >= IReturn && o <= Return) || o == AThrow:
		return OpcodeClassReturn
	default:
		return OpcodeClassOther
	}
}

// IsDefinition reports whether executing the opcode defines the variable it
// names: local stores, increments and field writes.
func (o Opcode) IsDefinition() bool {
	switch o.Class() {
	case OpcodeClassStore, OpcodeClassIncrement, OpcodeClassFieldWrite:
		return true
	}
	return false
}

// MemberRef names a field or method by owner, name and descriptor.
type MemberRef struct {
	Owner      string `json:"owner" yaml:"owner"`
	Name       string `json:"name" yaml:"name"`
	Descriptor string `json:"descriptor" yaml:"descriptor"`
}

// Key returns name+descriptor, the identifier of a method within its class.
func (m MemberRef) Key() string {
	return m.Name + m.Descriptor
}

func (m MemberRef) String() string {
	return m.Owner + "." + m.Name + m.Descriptor
}

// Instruction is one entry of a method's linear instruction stream.
type Instruction struct {
	Index  int        `json:"index" yaml:"index"`
	Line   int        `json:"line" yaml:"line"`
	Opcode Opcode     `json:"opcode" yaml:"opcode"`
	Slot   int        `json:"slot" yaml:"slot"`                       // Local slot operand of loads, stores and IINC
	Field  *MemberRef `json:"field,omitempty" yaml:"field,omitempty"` // Field operand of GET/PUT instructions
	Call   *MemberRef `json:"call,omitempty" yaml:"call,omitempty"`   // Target of invoke instructions
}

// FieldInput is a field declared by a class.
type FieldInput struct {
	Name       string `json:"name" yaml:"name"`
	Descriptor string `json:"descriptor" yaml:"descriptor"`
	Static     bool   `json:"static,omitempty" yaml:"static,omitempty"`
}

// MethodInput is a method as delivered by the disassembler.
type MethodInput struct {
	Name           string             `json:"name" yaml:"name"`
	Descriptor     string             `json:"descriptor" yaml:"descriptor"`
	Static         bool               `json:"static,omitempty" yaml:"static,omitempty"`
	LocalVariables LocalVariableTable `json:"local_variables,omitempty" yaml:"local_variables,omitempty"`
	Instructions   []Instruction      `json:"instructions" yaml:"instructions"`
	Edges          map[int][]int      `json:"edges,omitempty" yaml:"edges,omitempty"` // Successor indices per instruction; derived from fall-through when absent
}

// Key returns name+descriptor, e.g. "add(II)I".
func (m MethodInput) Key() string {
	return m.Name + m.Descriptor
}

// ClassInput is one class document consumed by the analysis.
type ClassInput struct {
	Name    string        `json:"name" yaml:"name"` // Internal name, e.g. com/example/Foo
	Source  string        `json:"source,omitempty" yaml:"source,omitempty"`
	Fields  []FieldInput  `json:"fields,omitempty" yaml:"fields,omitempty"`
	Methods []MethodInput `json:"methods" yaml:"methods"`
}

// PackageName returns the package part of an internal class name in dotted
// form; the default package is "".
func PackageName(className string) string {
	dir := path.Dir(className)
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.ReplaceAll(dir, "/", ".")
}

// SimpleName returns the class name without its package.
func SimpleName(className string) string {
	return path.Base(className)
}
