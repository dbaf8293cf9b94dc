package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// (positive) IDs, and all FK references within the batch are rewritten
// using the fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. Instances (parent_id; parents are buffered before children)
//  2. Nets, Variables, Parameters (instance_id)
//  3. Ports (instance_id, low_net_id)
//  4. References (instance_id, target_net_id, target_variable_id)
//  5. PortConnections (port_id, reference_id)
//  6. Diagnostics (run_id only, which is already real)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)
	remap := func(id *int64) *int64 {
		if id == nil || *id >= 0 {
			return id
		}
		realID, ok := fakeToReal[*id]
		if !ok {
			return nil
		}
		return &realID
	}
	instanceID := func(what, name string, id int64) (int64, error) {
		if id >= 0 {
			return id, nil
		}
		realID, ok := fakeToReal[id]
		if !ok {
			return 0, fmt.Errorf("commit batch: %s %q has instance_id=%d not in fakeToReal map (have %d instances)", what, name, id, len(batch.Instances))
		}
		return realID, nil
	}

	// 1. Instances
	for _, inst := range batch.Instances {
		inst.ParentID = remap(inst.ParentID)
		realID, err := insertInstanceTx(tx, &inst)
		if err != nil {
			return fmt.Errorf("commit batch: instance %q: %w", inst.Path, err)
		}
		fakeToReal[inst.ID] = realID
	}

	// 2. Nets, variables, parameters
	for _, n := range batch.Nets {
		if n.InstanceID, err = instanceID("net", n.Name, n.InstanceID); err != nil {
			return err
		}
		realID, err := insertNetTx(tx, &n)
		if err != nil {
			return fmt.Errorf("commit batch: net %q: %w", n.Name, err)
		}
		fakeToReal[n.ID] = realID
	}
	for _, v := range batch.Variables {
		if v.InstanceID, err = instanceID("variable", v.Name, v.InstanceID); err != nil {
			return err
		}
		realID, err := insertVariableTx(tx, &v)
		if err != nil {
			return fmt.Errorf("commit batch: variable %q: %w", v.Name, err)
		}
		fakeToReal[v.ID] = realID
	}
	for _, p := range batch.Parameters {
		if p.InstanceID, err = instanceID("parameter", p.Name, p.InstanceID); err != nil {
			return err
		}
		realID, err := insertParameterTx(tx, &p)
		if err != nil {
			return fmt.Errorf("commit batch: parameter %q: %w", p.Name, err)
		}
		fakeToReal[p.ID] = realID
	}

	// 3. Ports
	for _, p := range batch.Ports {
		if p.InstanceID, err = instanceID("port", p.Name, p.InstanceID); err != nil {
			return err
		}
		p.LowNetID = remap(p.LowNetID)
		realID, err := insertPortTx(tx, &p)
		if err != nil {
			return fmt.Errorf("commit batch: port %q: %w", p.Name, err)
		}
		fakeToReal[p.ID] = realID
	}

	// 4. References
	for _, ref := range batch.References {
		if ref.InstanceID, err = instanceID("reference", ref.Name, ref.InstanceID); err != nil {
			return err
		}
		ref.TargetNetID = remap(ref.TargetNetID)
		ref.TargetVariableID = remap(ref.TargetVariableID)
		realID, err := insertReferenceTx(tx, &ref)
		if err != nil {
			return fmt.Errorf("commit batch: reference %q: %w", ref.Name, err)
		}
		fakeToReal[ref.ID] = realID
	}

	// 5. PortConnections
	for _, pc := range batch.PortConnections {
		if pc.PortID < 0 {
			pc.PortID = fakeToReal[pc.PortID]
		}
		if pc.ReferenceID < 0 {
			pc.ReferenceID = fakeToReal[pc.ReferenceID]
		}
		realID, err := insertPortConnectionTx(tx, &pc)
		if err != nil {
			return fmt.Errorf("commit batch: port connection: %w", err)
		}
		fakeToReal[pc.ID] = realID
	}

	// 6. Diagnostics
	for _, d := range batch.Diagnostics {
		if _, err := insertDiagnosticTx(tx, &d); err != nil {
			return fmt.Errorf("commit batch: diagnostic %q: %w", d.Kind, err)
		}
	}

	return tx.Commit()
}

// --- Transaction-scoped insert helpers ---
// These mirror the Store insert methods but accept *sql.Tx instead of using s.db.

func insertInstanceTx(tx *sql.Tx, inst *Instance) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO instances (run_id, parent_id, name, path, def_name, kind, depth, ordinal,
			file_path, line, col, config, bound_from)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.RunID, inst.ParentID, inst.Name, inst.Path, inst.DefName, inst.Kind, inst.Depth, inst.Ordinal,
		inst.FilePath, inst.Line, inst.Col, inst.Config, inst.BoundFrom,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertNetTx(tx *sql.Tx, n *Net) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO nets (instance_id, name, net_type, implicit, is_array, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.InstanceID, n.Name, n.NetType, n.Implicit, n.IsArray, n.Line, n.Col,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertVariableTx(tx *sql.Tx, v *Variable) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO variables (instance_id, name, type, is_array, line, col)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.InstanceID, v.Name, v.Type, v.IsArray, v.Line, v.Col,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertParameterTx(tx *sql.Tx, p *Parameter) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO parameters (instance_id, name, source, value, expr, evaluated, is_type, overridden)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.InstanceID, p.Name, p.Source, p.Value, p.Expr, p.Evaluated, p.IsType, p.Overridden,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertPortTx(tx *sql.Tx, p *Port) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO ports (instance_id, name, direction, ordinal, high_expr, low_net_id, unconnected)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.InstanceID, p.Name, p.Direction, p.Ordinal, p.HighExpr, p.LowNetID, p.Unconnected,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertReferenceTx(tx *sql.Tx, ref *Reference) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO references_ (instance_id, name, file_path, line, col, target_kind, target_name,
			target_scope, target_net_id, target_variable_id, as_parameter)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.InstanceID, ref.Name, ref.FilePath, ref.Line, ref.Col, ref.TargetKind, ref.TargetName,
		ref.TargetScope, ref.TargetNetID, ref.TargetVariableID, ref.AsParameter,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertPortConnectionTx(tx *sql.Tx, pc *PortConnection) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO port_connections (port_id, reference_id) VALUES (?, ?)",
		pc.PortID, pc.ReferenceID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertDiagnosticTx(tx *sql.Tx, d *Diagnostic) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO diagnostics (run_id, kind, category, severity, message, file_path, line, col, secondary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Kind, d.Category, d.Severity, d.Message, d.FilePath, d.Line, d.Col, marshalStrings(d.Secondary),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
