package store

// DataStore is the interface for tree-persistence writes. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering for parallel
// persistence) implement this interface.
type DataStore interface {
	// Inserts each return the assigned ID.
	InsertInstance(inst *Instance) (int64, error)
	InsertParameter(p *Parameter) (int64, error)
	InsertNet(n *Net) (int64, error)
	InsertVariable(v *Variable) (int64, error)
	InsertPort(p *Port) (int64, error)
	InsertReference(ref *Reference) (int64, error)
	InsertPortConnection(pc *PortConnection) (int64, error)
	InsertDiagnostic(d *Diagnostic) (int64, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
