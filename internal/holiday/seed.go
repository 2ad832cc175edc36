package holiday

import _ "embed"

// defaultSeed is the bundled national holiday table used when no external
// seed file is configured.
//
//go:embed seed.yaml
var defaultSeed []byte
