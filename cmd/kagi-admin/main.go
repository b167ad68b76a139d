// Command kagi-admin performs operator tasks against a Kagi deployment:
// generating encryption keys, applying migrations, provisioning users and
// issuing or revoking browser sessions.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failure.Sprint("error:"), err)
		os.Exit(1)
	}
}
