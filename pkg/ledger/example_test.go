package ledger_test

import (
	"fmt"
	"os"

	herrors "heliodata/pkg/errors"
	"heliodata/pkg/ledger"
)

func ExampleWith() {
	root, err := os.MkdirTemp("", "ledger-example-")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.RemoveAll(root)

	err = ledger.With(root, func(l *ledger.Ledger) error {
		if err := l.MarkDone("sdo-aia/0171@2020-01-01T00:00:00", "sdo-aia/0171/2020/01/2020-01-01T000000.fits"); err != nil {
			return err
		}
		return l.MarkFailed("sdo-aia/0171@2020-01-02T00:00:00", "no record", herrors.KindPermanent)
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	// A later process sees the flushed state.
	l, err := ledger.Open(root)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer l.Close()

	fmt.Println(l.IsDone("sdo-aia/0171@2020-01-01T00:00:00"))
	fmt.Println(l.IsDone("sdo-aia/0171@2020-01-02T00:00:00"))
	fmt.Println(l.Summary().Done, l.Summary().Failed)
	// Output:
	// true
	// false
	// 1 1
}
