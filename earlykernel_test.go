package newc_test

import (
	"testing"

	"go.pdmccormick.com/newc"
	"go.pdmccormick.com/newc/internal/newctest"
)

func TestIsMicrocode(t *testing.T) {
	var archive = newctest.Archive(t,
		newctest.File{Name: newc.MicrocodePath_GenuineIntel, Data: "intel"},
		newctest.File{Name: newc.MicrocodeX86Path + "README", Data: "no"},
	)

	var got []string
	for _, e := range newc.NewReader(archive).All() {
		if newc.IsMicrocode(e.Name) {
			got = append(got, e.Name.String())
		}
	}

	if len(got) != 1 || got[0] != newc.MicrocodePath_GenuineIntel {
		t.Fatalf("unexpected microcode entries %q", got)
	}
}
