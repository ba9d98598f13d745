package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilBarIsSafe(t *testing.T) {
	var bar *Bar

	assert.NotPanics(t, func() {
		bar.Increment()
		bar.Finish()
	})
}

func TestBarRendersToWriter(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBarTo(&buf, 2, "shop")

	bar.Increment()
	bar.Increment()
	bar.Finish()

	assert.Contains(t, buf.String(), "shop")
	assert.Contains(t, buf.String(), "2/2")
}
