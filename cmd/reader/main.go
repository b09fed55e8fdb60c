// reader is the secure reader session client.
package main

import (
	"os"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
