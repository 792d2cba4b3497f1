package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWarnfIncludesPrefixAndMessage(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Warnf("hat %q left nothing pending", "builder")
	assert.Contains(t, buf.String(), "[ralph] warning:")
	assert.Contains(t, buf.String(), `hat "builder" left nothing pending`)
}

func TestInfofAndErrorf(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Infof("starting run %s", "loop-1")
	l.Errorf("adapter failed: %v", "boom")
	out := buf.String()
	assert.Contains(t, out, "[ralph] starting run loop-1")
	assert.Contains(t, out, "[ralph] error:")
	assert.Contains(t, out, "adapter failed: boom")
}
