package early

import (
	"bytes"
	"gopheros/kernel/kfmt"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer kfmt.SetOutputSink(nil)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	Printf("pfn: %d, flags: 0x%x", 42, 0xbadf00d)

	if exp, got := "pfn: 42, flags: 0xbadf00d", buf.String(); got != exp {
		t.Errorf("expected output %q; got %q", exp, got)
	}
}
