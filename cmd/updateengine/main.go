// Command updateengine is the CLI front end for the RDF update engine:
// schema migration, ontology loading, SPARQL Update application, and
// N-Triples export/import, all driven against the same Postgres/Redis/
// CouchDB backing stores the engine uses in-process.
package main

import (
	"fmt"
	"os"

	"triplestore.dev/updateengine/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
