// Program statemigrate rewrites a persisted pipeline state file onto the
// current Snapshot schema version, mirroring the teacher's flag-driven
// single-purpose main.go (flag.StringVar + flag.Parse, no subcommands).
//
// Only schema_version 1 has ever shipped, so the migrations table below
// is empty; it exists so a future schema bump has a registration point
// instead of requiring a rewrite of this file's control flow.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/example/sigpipe/internal/state"
)

// migrations maps a source schema_version to a function that rewrites a
// raw snapshot (decoded as a generic map to tolerate field removals) into
// the next version's shape. Register each step in order; statemigrate
// applies them one at a time until it reaches state.CurrentSchemaVersion.
var migrations = map[int]func(map[string]any) map[string]any{}

func main() {
	var path string
	var dryRun bool
	flag.StringVar(&path, "state", "pipeline_state.json", "path to the state file to migrate")
	flag.BoolVar(&dryRun, "dry-run", false, "report the migration that would run without writing")
	flag.Parse()

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read state file: %v\n", err)
		os.Exit(1)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal state file: %v\n", err)
		os.Exit(1)
	}

	version, _ := doc["schema_version"].(float64)
	from := int(version)

	if from == state.CurrentSchemaVersion {
		fmt.Printf("%s is already at schema version %d; nothing to do\n", path, from)
		return
	}

	applied := 0
	for from != state.CurrentSchemaVersion {
		step, ok := migrations[from]
		if !ok {
			fmt.Fprintf(os.Stderr, "no migration registered for schema version %d (current is %d)\n", from, state.CurrentSchemaVersion)
			os.Exit(1)
		}
		doc = step(doc)
		from++
		doc["schema_version"] = float64(from)
		applied++
	}

	if dryRun {
		fmt.Printf("would apply %d migration(s) to %s, landing on schema version %d\n", applied, path, from)
		return
	}

	out, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal migrated state: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write migrated state: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("applied %d migration(s) to %s, now at schema version %d\n", applied, path, from)
}
