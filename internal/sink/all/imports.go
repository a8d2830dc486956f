// Package all wires every built-in sink backend into the sink factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories with the sink package. Binaries that only need one backend
// can blank-import that backend package directly instead.
package all

import (
	_ "github.com/siilats/target-postgres/internal/sink/postgres"
	_ "github.com/siilats/target-postgres/internal/sink/sqlite"
)
