package util

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
)

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewLogfmtLogger(&buf)

	// No span in the context: the logger is returned as is.
	assert.NoError(t, LoggerWithContext(context.Background(), l).Log("msg", "hello"))
	assert.Equal(t, "msg=hello\n", buf.String())

	buf.Reset()
	assert.NoError(t, LoggerWithTraceID("123abc", l).Log("msg", "hello"))
	assert.Equal(t, "traceID=123abc msg=hello\n", buf.String())
}
