// Package execio holds the JSON contract between the exec oracle and the
// agent CLI it drives.
package execio

//go:generate go tool schema-generate -p execio -o input.go input.schema.json
//go:generate go tool schema-generate -p execio -o output.go output.schema.json
//go:generate gofmt -w input.go output.go

import _ "embed"

//go:embed input.schema.json
var InputSchema string

//go:embed output.schema.json
var OutputSchema string
