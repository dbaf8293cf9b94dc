package arbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func netByName(t *testing.T, nets []*NetDetail, name string) *NetDetail {
	t.Helper()
	for _, n := range nets {
		if n.Name == name {
			return n
		}
	}
	t.Fatalf("no net %s", name)
	return nil
}

func TestNets_Connectivity(t *testing.T) {
	t.Parallel()
	e, _ := runSoc(t)

	nets, err := e.Query().Nets(0, "soc")
	require.NoError(t, err)
	require.Len(t, nets, 3)

	clk := netByName(t, nets, "clk")
	assert.Nil(t, clk.Port, "tops have no ports")
	assert.Equal(t, []*Connection{{InstancePath: "soc.u_alu", Port: "clk", Direction: "input", HighExpr: "clk"}}, clk.Connections)
	assert.Equal(t, 1, clk.References)

	bus := netByName(t, nets, "bus")
	assert.Equal(t, []*Connection{{InstancePath: "soc.u_alu", Port: "y", Direction: "output", HighExpr: "bus"}}, bus.Connections)

	imp := netByName(t, nets, "imp")
	assert.True(t, imp.Implicit)
	assert.Empty(t, imp.Connections)
	assert.Equal(t, 1, imp.References)
}

func TestNets_LowConnPort(t *testing.T) {
	t.Parallel()
	e, _ := runSoc(t)

	nets, err := e.Query().Nets(0, "soc.u_alu")
	require.NoError(t, err)
	clk := netByName(t, nets, "clk")
	require.NotNil(t, clk.Port)
	assert.Equal(t, "clk", clk.Port.Name)
	assert.Equal(t, "input", clk.Port.Direction)

	missing, err := e.Query().Nets(0, "soc.nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDefinitionGraph(t *testing.T) {
	t.Parallel()
	e, _ := runSoc(t)

	edges, err := e.Query().DefinitionGraph(0)
	require.NoError(t, err)
	assert.Equal(t, []*DefinitionEdge{
		{Parent: "soc", Child: "alu", Count: 1},
		{Parent: "soc", Child: "ghost_ip", Count: 1},
		{Parent: "soc", Child: "leaf", Count: 2},
	}, edges)
}
