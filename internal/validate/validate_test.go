package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/syntax"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func TestValidate_AcceptsWellFormedDesign(t *testing.T) {
	t.Parallel()
	v := newTestValidator(t)
	sf := syntax.File("top.sv",
		syntax.N(syntax.KindDefaultNetType, "").WithAttr("wire"),
		syntax.N(syntax.KindModule, "top",
			syntax.N(syntax.KindPort, "clk").WithAttr("input"),
			syntax.N(syntax.KindInstantiation, "leaf",
				syntax.N(syntax.KindInstance, "u0",
					syntax.N(syntax.KindPortConn, "clk", syntax.E("clk", "clk")),
				),
			),
		).At(1, 1),
	)
	require.NoError(t, v.Validate(sf))
	assert.Empty(t, v.Problems(sf))
}

func TestValidate_EveryKindIsKnownToSchema(t *testing.T) {
	t.Parallel()
	v := newTestValidator(t)
	for _, name := range syntax.KindNames() {
		node := syntax.SourceNode{Kind: name, Name: "x"}
		switch name {
		case "default_nettype":
			node.Attr = "none"
		case "port":
			node.Attr = "input"
		}
		assert.NoError(t, v.Validate(syntax.File("k.sv", node)), name)
	}
}

func TestValidate_RejectsBadInput(t *testing.T) {
	t.Parallel()
	v := newTestValidator(t)
	tests := []struct {
		name string
		file *syntax.SourceFile
	}{
		{"unknown kind", syntax.File("a.sv", syntax.SourceNode{Kind: "wormhole"})},
		{"unnamed module", syntax.File("a.sv", syntax.SourceNode{Kind: "module"})},
		{"bad direction", syntax.File("a.sv", syntax.N(syntax.KindPort, "p").WithAttr("sideways"))},
		{"bad nettype", syntax.File("a.sv", syntax.N(syntax.KindDefaultNetType, "").WithAttr("string"))},
		{"empty path", syntax.File("", syntax.N(syntax.KindModule, "m"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, v.Validate(tt.file))
			assert.NotEmpty(t, v.Problems(tt.file))
		})
	}
}

func TestValidateJSON_Malformed(t *testing.T) {
	t.Parallel()
	v := newTestValidator(t)
	require.Error(t, v.ValidateJSON([]byte(`{"file": "a.sv", "nodes": [`)))
}
