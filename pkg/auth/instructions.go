package auth

import (
	"fmt"

	"heliodata/pkg/ui"
)

// ShowIdentityGuide prints how to obtain and store archive identities
func ShowIdentityGuide() {
	fmt.Println()
	fmt.Println(ui.Bold("Archive identities"))
	fmt.Println()
	fmt.Println("Some archives only serve data to registered users. heliodata passes")
	fmt.Println("the stored identity to the archive client unchanged.")
	fmt.Println()
	fmt.Println(ui.Cyan("JSOC (sdo-aia, sdo-hmi)"))
	fmt.Println("  Register an export e-mail at http://jsoc.stanford.edu/ajax/register_email.html")
	fmt.Println("  then run:  heliodata auth set jsoc")
	fmt.Println()
	fmt.Println(ui.Cyan("Other archives"))
	fmt.Println("  Store a token under any archive name and reference it from the")
	fmt.Println("  mission URL template with {identity}.")
	fmt.Println()
	fmt.Printf("Identities can also be supplied through %s or %s_<ARCHIVE>.\n", EnvIdentity, EnvIdentity)
	fmt.Println()
}
