package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter_FinishRendersTotals(t *testing.T) {
	var buf bytes.Buffer
	c := NewWithWriter(&buf, true)

	c.SetDirectory("/css")
	c.Increment()
	c.Increment()
	c.SetDirectory("/js/vendor")
	c.Increment()
	c.Finish()

	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\r\033[K3 files in 2 directories\n")), "final line: %q", buf.String())
}

func TestCounter_FirstEventRendersDirectory(t *testing.T) {
	var buf bytes.Buffer
	c := NewWithWriter(&buf, true)

	c.SetDirectory("/js/vendor")

	assert.Contains(t, buf.String(), "| vendor")
}

func TestCounter_Disabled(t *testing.T) {
	var buf bytes.Buffer
	c := NewWithWriter(&buf, false)

	c.SetDirectory("/css")
	c.Increment()
	c.Finish()

	assert.Zero(t, buf.Len())
}
