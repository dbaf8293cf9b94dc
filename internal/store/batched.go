package store

import "sync"

// BatchedStore buffers tree inserts in memory using fake (negative) IDs.
// It implements DataStore so the tree writer can fill it without knowing
// whether it is hitting SQLite or an in-memory buffer. One batch is filled
// per top-level instance, in parallel, then committed serially.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
type BatchedStore struct {
	mu sync.Mutex

	// Buffered tree data.
	Instances       []Instance
	Parameters      []Parameter
	Nets            []Net
	Variables       []Variable
	Ports           []Port
	References      []Reference
	PortConnections []PortConnection
	Diagnostics     []Diagnostic

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates an empty BatchedStore.
func NewBatchedStore() *BatchedStore {
	return &BatchedStore{nextFakeID: -1}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *BatchedStore) InsertInstance(inst *Instance) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	inst.ID = fakeID
	b.Instances = append(b.Instances, *inst)
	return fakeID, nil
}

func (b *BatchedStore) InsertParameter(p *Parameter) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	p.ID = fakeID
	b.Parameters = append(b.Parameters, *p)
	return fakeID, nil
}

func (b *BatchedStore) InsertNet(n *Net) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	n.ID = fakeID
	b.Nets = append(b.Nets, *n)
	return fakeID, nil
}

func (b *BatchedStore) InsertVariable(v *Variable) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	v.ID = fakeID
	b.Variables = append(b.Variables, *v)
	return fakeID, nil
}

func (b *BatchedStore) InsertPort(p *Port) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	p.ID = fakeID
	b.Ports = append(b.Ports, *p)
	return fakeID, nil
}

func (b *BatchedStore) InsertReference(ref *Reference) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	ref.ID = fakeID
	b.References = append(b.References, *ref)
	return fakeID, nil
}

func (b *BatchedStore) InsertPortConnection(pc *PortConnection) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	pc.ID = fakeID
	b.PortConnections = append(b.PortConnections, *pc)
	return fakeID, nil
}

func (b *BatchedStore) InsertDiagnostic(d *Diagnostic) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	d.ID = fakeID
	b.Diagnostics = append(b.Diagnostics, *d)
	return fakeID, nil
}

// Len returns the number of buffered rows.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Instances) + len(b.Parameters) + len(b.Nets) + len(b.Variables) +
		len(b.Ports) + len(b.References) + len(b.PortConnections) + len(b.Diagnostics)
}
