package arbor

import (
	"fmt"
)

// InstanceDetail bundles an instance with everything elaborated inside it.
// One call replaces five separate Store lookups.
type InstanceDetail struct {
	Instance   Instance
	Parameters []*Parameter // effective bindings, in declaration order
	Ports      []*Port      // in port order; LowNetID links into Nets
	Nets       []*Net       // declared and implicit nets
	Variables  []*Variable
	Children   []*Instance // direct children in elaboration order
	// Unresolved counts this instance's references left unbound.
	Unresolved int
}

// Instance returns the detail view of the instance at path. Returns nil
// with no error if the path does not exist.
func (q *QueryBuilder) Instance(runID int64, path string) (*InstanceDetail, error) {
	inst, _, err := q.instance(runID, path)
	if err != nil {
		return nil, fmt.Errorf("instance detail: %w", err)
	}
	if inst == nil {
		return nil, nil
	}

	params, err := q.store.ParametersByInstance(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("instance detail: parameters: %w", err)
	}
	ports, err := q.store.PortsByInstance(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("instance detail: ports: %w", err)
	}
	nets, err := q.store.NetsByInstance(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("instance detail: nets: %w", err)
	}
	vars, err := q.store.VariablesByInstance(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("instance detail: variables: %w", err)
	}
	children, err := q.store.ChildInstances(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("instance detail: children: %w", err)
	}

	var unresolved int
	err = q.store.DB().QueryRow(
		`SELECT COUNT(*) FROM references_
		 WHERE instance_id = ? AND target_kind = '' AND NOT as_parameter`, inst.ID,
	).Scan(&unresolved)
	if err != nil {
		return nil, fmt.Errorf("instance detail: unresolved count: %w", err)
	}

	if params == nil {
		params = []*Parameter{}
	}
	if ports == nil {
		ports = []*Port{}
	}
	if nets == nil {
		nets = []*Net{}
	}
	if vars == nil {
		vars = []*Variable{}
	}
	if children == nil {
		children = []*Instance{}
	}

	return &InstanceDetail{
		Instance:   *inst,
		Parameters: params,
		Ports:      ports,
		Nets:       nets,
		Variables:  vars,
		Children:   children,
		Unresolved: unresolved,
	}, nil
}

// Params returns the effective parameter bindings of the instance at path.
// Returns nil with no error if the path does not exist.
func (q *QueryBuilder) Params(runID int64, path string) ([]*Parameter, error) {
	inst, _, err := q.instance(runID, path)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if inst == nil {
		return nil, nil
	}
	params, err := q.store.ParametersByInstance(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if params == nil {
		params = []*Parameter{}
	}
	return params, nil
}
