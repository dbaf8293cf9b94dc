// Package scripts embeds the risor prelude shipped with arbor.
package scripts

import "embed"

// FS holds prelude.risor. The CLI hands it to the engine unless a scripts
// directory is configured.
//
//go:embed prelude.risor
var FS embed.FS
