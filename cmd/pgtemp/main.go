// Command pgtemp starts disposable PostgreSQL instances from the shell.
package main

import (
	"os"

	"github.com/jrepp/pgtemp/cmd/pgtemp/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
