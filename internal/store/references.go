package store

import (
	"fmt"
	"strings"
)

// --- Reference operations ---

func (s *Store) InsertReference(ref *Reference) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO references_ (instance_id, name, file_path, line, col, target_kind, target_name,
			target_scope, target_net_id, target_variable_id, as_parameter)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.InstanceID, ref.Name, ref.FilePath, ref.Line, ref.Col, ref.TargetKind, ref.TargetName,
		ref.TargetScope, ref.TargetNetID, ref.TargetVariableID, ref.AsParameter,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reference: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ref.ID = id
	return id, nil
}

const referenceCols = `r.id, r.instance_id, r.name, r.file_path, r.line, r.col, r.target_kind,
	r.target_name, r.target_scope, r.target_net_id, r.target_variable_id, r.as_parameter`

func (s *Store) queryReferences(query string, args ...any) ([]*Reference, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Reference
	for rows.Next() {
		r := &Reference{}
		if err := rows.Scan(&r.ID, &r.InstanceID, &r.Name, &r.FilePath, &r.Line, &r.Col, &r.TargetKind,
			&r.TargetName, &r.TargetScope, &r.TargetNetID, &r.TargetVariableID, &r.AsParameter); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReferencesByInstance(instanceID int64) ([]*Reference, error) {
	return s.queryReferences(
		"SELECT "+referenceCols+" FROM references_ r WHERE r.instance_id = ? ORDER BY r.id", instanceID,
	)
}

// UnresolvedReferences returns the references of a run that are neither
// bound nor parameters.
func (s *Store) UnresolvedReferences(runID int64) ([]*Reference, error) {
	return s.queryReferences(
		`SELECT `+referenceCols+` FROM references_ r
		 JOIN instances i ON i.id = r.instance_id
		 WHERE i.run_id = ? AND r.target_kind = '' AND NOT r.as_parameter
		 ORDER BY r.id`, runID,
	)
}

// ReferencesToNet returns the references bound to a net.
func (s *Store) ReferencesToNet(netID int64) ([]*Reference, error) {
	return s.queryReferences(
		"SELECT "+referenceCols+" FROM references_ r WHERE r.target_net_id = ? ORDER BY r.id", netID,
	)
}

// --- Port connection operations ---

func (s *Store) InsertPortConnection(pc *PortConnection) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO port_connections (port_id, reference_id) VALUES (?, ?)",
		pc.PortID, pc.ReferenceID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert port connection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	pc.ID = id
	return id, nil
}

// NetConnections returns the ports whose high-conn expressions reference
// the given net, ordered by instance path and port position.
func (s *Store) NetConnections(netID int64) ([]*Connection, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT i.path, p.name, p.direction, p.high_expr, p.ordinal
		 FROM port_connections pc
		 JOIN references_ r ON r.id = pc.reference_id
		 JOIN ports p ON p.id = pc.port_id
		 JOIN instances i ON i.id = p.instance_id
		 WHERE r.target_net_id = ?
		 ORDER BY i.path, p.ordinal`, netID,
	)
	if err != nil {
		return nil, fmt.Errorf("net connections: %w", err)
	}
	defer rows.Close()
	var out []*Connection
	for rows.Next() {
		c := &Connection{}
		var ordinal int
		if err := rows.Scan(&c.InstancePath, &c.Port, &c.Direction, &c.HighExpr, &ordinal); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PortOfNet returns the port whose low-conn is the given net, if any.
func (s *Store) PortOfNet(netID int64) (*Port, error) {
	rows, err := s.db.Query(
		`SELECT id, instance_id, name, direction, ordinal, high_expr, low_net_id, unconnected
		 FROM ports WHERE low_net_id = ? LIMIT 1`, netID,
	)
	if err != nil {
		return nil, fmt.Errorf("port of net: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	p := &Port{}
	if err := rows.Scan(&p.ID, &p.InstanceID, &p.Name, &p.Direction, &p.Ordinal, &p.HighExpr, &p.LowNetID, &p.Unconnected); err != nil {
		return nil, fmt.Errorf("scan port: %w", err)
	}
	return p, nil
}

// --- Diagnostic operations ---

func (s *Store) InsertDiagnostic(d *Diagnostic) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO diagnostics (run_id, kind, category, severity, message, file_path, line, col, secondary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Kind, d.Category, d.Severity, d.Message, d.FilePath, d.Line, d.Col, marshalStrings(d.Secondary),
	)
	if err != nil {
		return 0, fmt.Errorf("insert diagnostic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return id, nil
}

// DiagnosticFilter narrows a diagnostics query. Empty fields match
// everything.
type DiagnosticFilter struct {
	Kinds      []string
	Severities []string
	Category   string
}

// Diagnostics returns the diagnostics of a run in report order.
func (s *Store) Diagnostics(runID int64, f DiagnosticFilter) ([]*Diagnostic, error) {
	var (
		where = []string{"run_id = ?"}
		args  = []any{runID}
	)
	if len(f.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholderList(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if len(f.Severities) > 0 {
		where = append(where, "severity IN ("+placeholderList(len(f.Severities))+")")
		for _, sev := range f.Severities {
			args = append(args, sev)
		}
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, kind, category, severity, message, file_path, line, col, secondary
		 FROM diagnostics WHERE `+strings.Join(where, " AND ")+` ORDER BY id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	defer rows.Close()
	var out []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		var secondary string
		if err := rows.Scan(&d.ID, &d.RunID, &d.Kind, &d.Category, &d.Severity, &d.Message,
			&d.FilePath, &d.Line, &d.Col, &secondary); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Secondary = unmarshalStrings(secondary)
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertPackageReference stores one package subroutine reference.
func (s *Store) InsertPackageReference(ref *PackageReference) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO package_references (run_id, package, name, file_path, line, col,
			target_kind, target_name, target_scope, as_parameter)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.RunID, ref.Package, ref.Name, ref.FilePath, ref.Line, ref.Col,
		ref.TargetKind, ref.TargetName, ref.TargetScope, ref.AsParameter,
	)
	if err != nil {
		return 0, fmt.Errorf("insert package reference: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ref.ID = id
	return id, nil
}

// PackageReferences returns the package subroutine references of a run in
// elaboration order. An empty pkg matches every package.
func (s *Store) PackageReferences(runID int64, pkg string) ([]*PackageReference, error) {
	query := `SELECT id, run_id, package, name, file_path, line, col,
		COALESCE(target_kind, ''), COALESCE(target_name, ''), COALESCE(target_scope, ''), as_parameter
		FROM package_references WHERE run_id = ?`
	args := []any{runID}
	if pkg != "" {
		query += " AND package = ?"
		args = append(args, pkg)
	}
	rows, err := s.db.Query(query+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PackageReference
	for rows.Next() {
		r := &PackageReference{}
		if err := rows.Scan(&r.ID, &r.RunID, &r.Package, &r.Name, &r.FilePath, &r.Line, &r.Col,
			&r.TargetKind, &r.TargetName, &r.TargetScope, &r.AsParameter); err != nil {
			return nil, fmt.Errorf("scan package reference: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
