// Command coachctl runs administrative operations against the CoachHub
// database: restoring soft-deleted relationships, reading the audit log and
// running the integrity sweep on demand.
package main

import (
	"fmt"
	"os"
)

var Version = "dev"

func main() {
	if err := newRootCmd(defaultConnect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
