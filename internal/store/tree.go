package store

import (
	"database/sql"
	"fmt"
)

// --- Instance operations ---

func (s *Store) InsertInstance(inst *Instance) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO instances (run_id, parent_id, name, path, def_name, kind, depth, ordinal,
			file_path, line, col, config, bound_from)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.RunID, inst.ParentID, inst.Name, inst.Path, inst.DefName, inst.Kind, inst.Depth, inst.Ordinal,
		inst.FilePath, inst.Line, inst.Col, inst.Config, inst.BoundFrom,
	)
	if err != nil {
		return 0, fmt.Errorf("insert instance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	inst.ID = id
	return id, nil
}

// InstanceCols is the column list for instance queries, exported for use by QueryBuilder.
const InstanceCols = `id, run_id, parent_id, name, path, def_name, kind, depth, ordinal,
	file_path, line, col, config, bound_from`

// ScanInstanceRow scans a single row into an Instance. Exported for use by QueryBuilder.
func ScanInstanceRow(sc scanner) (*Instance, error) {
	inst := &Instance{}
	err := sc.Scan(
		&inst.ID, &inst.RunID, &inst.ParentID, &inst.Name, &inst.Path, &inst.DefName, &inst.Kind,
		&inst.Depth, &inst.Ordinal, &inst.FilePath, &inst.Line, &inst.Col, &inst.Config, &inst.BoundFrom,
	)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Store) queryInstances(query string, args ...any) ([]*Instance, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Instance
	for rows.Next() {
		inst, err := ScanInstanceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *Store) InstanceByID(id int64) (*Instance, error) {
	inst, err := ScanInstanceRow(s.db.QueryRow("SELECT "+InstanceCols+" FROM instances WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("instance by id: %w", err)
	}
	return inst, nil
}

// InstanceByPath returns the instance with the given hierarchical path, or
// nil.
func (s *Store) InstanceByPath(runID int64, path string) (*Instance, error) {
	inst, err := ScanInstanceRow(s.db.QueryRow(
		"SELECT "+InstanceCols+" FROM instances WHERE run_id = ? AND path = ?", runID, path,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("instance by path: %w", err)
	}
	return inst, nil
}

// RootInstances returns the tops of a run in elaboration order.
func (s *Store) RootInstances(runID int64) ([]*Instance, error) {
	return s.queryInstances(
		"SELECT "+InstanceCols+" FROM instances WHERE run_id = ? AND parent_id IS NULL ORDER BY ordinal, id", runID,
	)
}

// ChildInstances returns the children of an instance in source order.
func (s *Store) ChildInstances(parentID int64) ([]*Instance, error) {
	return s.queryInstances(
		"SELECT "+InstanceCols+" FROM instances WHERE parent_id = ? ORDER BY ordinal, id", parentID,
	)
}

func (s *Store) InstancesByDefinition(runID int64, defName string) ([]*Instance, error) {
	return s.queryInstances(
		"SELECT "+InstanceCols+" FROM instances WHERE run_id = ? AND def_name = ? ORDER BY id", runID, defName,
	)
}

// --- Parameter operations ---

func (s *Store) InsertParameter(p *Parameter) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO parameters (instance_id, name, source, value, expr, evaluated, is_type, overridden)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.InstanceID, p.Name, p.Source, p.Value, p.Expr, p.Evaluated, p.IsType, p.Overridden,
	)
	if err != nil {
		return 0, fmt.Errorf("insert parameter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return id, nil
}

func (s *Store) ParametersByInstance(instanceID int64) ([]*Parameter, error) {
	rows, err := s.db.Query(
		`SELECT id, instance_id, name, source, value, expr, evaluated, is_type, overridden
		 FROM parameters WHERE instance_id = ? ORDER BY id`, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("parameters by instance: %w", err)
	}
	defer rows.Close()
	var out []*Parameter
	for rows.Next() {
		p := &Parameter{}
		if err := rows.Scan(&p.ID, &p.InstanceID, &p.Name, &p.Source, &p.Value, &p.Expr, &p.Evaluated, &p.IsType, &p.Overridden); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Net and variable operations ---

func (s *Store) InsertNet(n *Net) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO nets (instance_id, name, net_type, implicit, is_array, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.InstanceID, n.Name, n.NetType, n.Implicit, n.IsArray, n.Line, n.Col,
	)
	if err != nil {
		return 0, fmt.Errorf("insert net: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	n.ID = id
	return id, nil
}

func (s *Store) NetsByInstance(instanceID int64) ([]*Net, error) {
	rows, err := s.db.Query(
		`SELECT id, instance_id, name, net_type, implicit, is_array, line, col
		 FROM nets WHERE instance_id = ? ORDER BY id`, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("nets by instance: %w", err)
	}
	defer rows.Close()
	var out []*Net
	for rows.Next() {
		n := &Net{}
		if err := rows.Scan(&n.ID, &n.InstanceID, &n.Name, &n.NetType, &n.Implicit, &n.IsArray, &n.Line, &n.Col); err != nil {
			return nil, fmt.Errorf("scan net: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) InsertVariable(v *Variable) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO variables (instance_id, name, type, is_array, line, col)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.InstanceID, v.Name, v.Type, v.IsArray, v.Line, v.Col,
	)
	if err != nil {
		return 0, fmt.Errorf("insert variable: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	v.ID = id
	return id, nil
}

func (s *Store) VariablesByInstance(instanceID int64) ([]*Variable, error) {
	rows, err := s.db.Query(
		`SELECT id, instance_id, name, type, is_array, line, col
		 FROM variables WHERE instance_id = ? ORDER BY id`, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("variables by instance: %w", err)
	}
	defer rows.Close()
	var out []*Variable
	for rows.Next() {
		v := &Variable{}
		if err := rows.Scan(&v.ID, &v.InstanceID, &v.Name, &v.Type, &v.IsArray, &v.Line, &v.Col); err != nil {
			return nil, fmt.Errorf("scan variable: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Port operations ---

func (s *Store) InsertPort(p *Port) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO ports (instance_id, name, direction, ordinal, high_expr, low_net_id, unconnected)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.InstanceID, p.Name, p.Direction, p.Ordinal, p.HighExpr, p.LowNetID, p.Unconnected,
	)
	if err != nil {
		return 0, fmt.Errorf("insert port: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return id, nil
}

func (s *Store) PortsByInstance(instanceID int64) ([]*Port, error) {
	rows, err := s.db.Query(
		`SELECT id, instance_id, name, direction, ordinal, high_expr, low_net_id, unconnected
		 FROM ports WHERE instance_id = ? ORDER BY ordinal`, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("ports by instance: %w", err)
	}
	defer rows.Close()
	var out []*Port
	for rows.Next() {
		p := &Port{}
		if err := rows.Scan(&p.ID, &p.InstanceID, &p.Name, &p.Direction, &p.Ordinal, &p.HighExpr, &p.LowNetID, &p.Unconnected); err != nil {
			return nil, fmt.Errorf("scan port: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
