package model_test

import (
	"testing"

	"github.com/jvs-project/rcopy/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestOutcome_Predefined(t *testing.T) {
	assert.True(t, model.Success.IsSuccess())
	assert.Empty(t, model.Success.Message)

	assert.Equal(t, model.KindRetriableError, model.Terminated.Kind)
	assert.Equal(t, "Process was terminated.", model.Terminated.Message)
	assert.True(t, model.Interrupted.IsRetriable())
	assert.True(t, model.TimedOut.IsRetriable())
	assert.NotEqual(t, model.Terminated, model.Interrupted)
}

func TestOutcome_Constructors(t *testing.T) {
	o := model.FatalError("unknown exit code %d", 99)
	assert.Equal(t, model.KindFatalError, o.Kind)
	assert.Equal(t, "unknown exit code 99", o.Message)
	assert.False(t, o.IsRetriable())
	assert.Equal(t, "fatal_error: unknown exit code 99", o.String())

	r := model.RetriableError("socket")
	assert.True(t, r.IsRetriable())
	assert.False(t, r.IsSuccess())
}

func TestCopyRequest_RemoteHost(t *testing.T) {
	assert.False(t, model.CopyRequest{SourcePath: "/a", DestinationDir: "/b"}.IsRemote())

	req := model.CopyRequest{SourcePath: "a", SourceHost: "src1", DestinationDir: "/b"}
	assert.True(t, req.IsRemote())
	assert.Equal(t, "src1", req.RemoteHost())

	req = model.CopyRequest{SourcePath: "/a", DestinationDir: "b", DestinationHost: "store1"}
	assert.Equal(t, "store1", req.RemoteHost())
}
