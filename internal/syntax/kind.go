package syntax

import "fmt"

// Kind is the type of a syntax node.
type Kind uint16

const (
	KindSentinel Kind = iota
	KindSourceText

	// Design units.
	KindModule
	KindInterface
	KindProgram
	KindPackage
	KindClass
	KindPrimitive
	KindConfig

	// Declarations.
	KindParam
	KindLocalParam
	KindPort
	KindNet
	KindVar
	KindTypedef
	KindEnumConst
	KindImport
	KindDefaultNetType
	KindGenvar
	KindFunction
	KindTask

	// Statements and processes.
	KindBlock
	KindFork
	KindFor
	KindAssign
	KindContAssign
	KindAlways
	KindInitial
	KindFinal
	KindStmt

	// Hierarchy.
	KindInstantiation
	KindInstance
	KindGate
	KindParamAssign
	KindPortConn
	KindRange
	KindBind

	// Generate constructs.
	KindGenerate
	KindGenerateIf
	KindGenerateFor
	KindGenerateCase
	KindCaseItem
	KindGenerateBlock

	// Configurations.
	KindConfigDesign
	KindInstanceRule
	KindCellRule
	KindUse

	// Expressions.
	KindExpr
	KindRef

	kindCount
)

var kindNames = [...]string{
	KindSentinel:       "sentinel",
	KindSourceText:     "source_text",
	KindModule:         "module",
	KindInterface:      "interface",
	KindProgram:        "program",
	KindPackage:        "package",
	KindClass:          "class",
	KindPrimitive:      "primitive",
	KindConfig:         "config",
	KindParam:          "param",
	KindLocalParam:     "localparam",
	KindPort:           "port",
	KindNet:            "net",
	KindVar:            "var",
	KindTypedef:        "typedef",
	KindEnumConst:      "enum_const",
	KindImport:         "import",
	KindDefaultNetType: "default_nettype",
	KindGenvar:         "genvar",
	KindFunction:       "function",
	KindTask:           "task",
	KindBlock:          "block",
	KindFork:           "fork",
	KindFor:            "for",
	KindAssign:         "assign",
	KindContAssign:     "cont_assign",
	KindAlways:         "always",
	KindInitial:        "initial",
	KindFinal:          "final",
	KindStmt:           "stmt",
	KindInstantiation:  "instantiation",
	KindInstance:       "instance",
	KindGate:           "gate",
	KindParamAssign:    "param_assign",
	KindPortConn:       "port_conn",
	KindRange:          "range",
	KindBind:           "bind",
	KindGenerate:       "generate",
	KindGenerateIf:     "generate_if",
	KindGenerateFor:    "generate_for",
	KindGenerateCase:   "generate_case",
	KindCaseItem:       "case_item",
	KindGenerateBlock:  "generate_block",
	KindConfigDesign:   "config_design",
	KindInstanceRule:   "instance_rule",
	KindCellRule:       "cell_rule",
	KindUse:            "use",
	KindExpr:           "expr",
	KindRef:            "ref",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = Kind(k)
	}
	return m
}()

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// ParseKind maps a kind name as written in design files to its Kind.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	if !ok || k == KindSentinel {
		return KindSentinel, false
	}
	return k, true
}

// KindNames lists every kind name accepted in design files.
func KindNames() []string {
	out := make([]string, 0, len(kindNames)-1)
	for k := KindSourceText; k < kindCount; k++ {
		out = append(out, kindNames[k])
	}
	return out
}

// IsDesignUnit reports whether k declares a top-level design unit.
func (k Kind) IsDesignUnit() bool {
	return k >= KindModule && k <= KindConfig
}

// IsScope reports whether k opens a lexical scope for name resolution.
func (k Kind) IsScope() bool {
	switch k {
	case KindFunction, KindTask, KindBlock, KindFork, KindFor, KindGenerateBlock:
		return true
	}
	return k.IsDesignUnit()
}

// in reports whether k is one of kinds.
func (k Kind) in(kinds []Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}
