package arbor

import "github.com/jward/arbor/internal/store"

// Public type aliases for internal store types used in the QueryBuilder API.
// These are Go type aliases (=) and need no conversion.

type Store = store.Store
type Run = store.Run
type File = store.File
type Instance = store.Instance
type Parameter = store.Parameter
type Net = store.Net
type Variable = store.Variable
type Port = store.Port
type Reference = store.Reference
type PackageReference = store.PackageReference
type Diagnostic = store.Diagnostic
type Connection = store.Connection
type DiagnosticFilter = store.DiagnosticFilter
