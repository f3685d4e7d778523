package command_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jvs-project/rcopy/internal/command"
	"github.com/jvs-project/rcopy/pkg/errclass"
	"github.com/jvs-project/rcopy/pkg/model"
	"github.com/jvs-project/rcopy/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unixBuilder(inv model.ToolInvocation) *command.Builder {
	return command.NewBuilder(inv, pathutil.ForPlatform("linux"))
}

func TestBuildCopy_Local(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "/usr/bin/rsync", SSHExecutable: "/usr/bin/ssh"})

	argv, err := b.BuildCopy(model.CopyRequest{SourcePath: "/data/run1", DestinationDir: "/archive"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/usr/bin/rsync", "--archive", "--delete", "--inplace", "--whole-file",
		"/data/run1", "/archive/",
	}, argv)
}

func TestBuildCopy_ToRemoteWithSSH(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "/usr/bin/rsync", SSHExecutable: "/usr/bin/ssh"})

	argv, err := b.BuildCopy(model.CopyRequest{
		SourcePath:      "/data/run1",
		DestinationDir:  "incoming",
		DestinationHost: "store1",
	}, "")
	require.NoError(t, err)

	i := indexOf(argv, "--rsh")
	require.GreaterOrEqual(t, i, 0)
	require.Less(t, i+1, len(argv))
	assert.True(t, strings.HasSuffix(argv[i+1], "-oBatchMode=yes"))
	assert.Equal(t, "/usr/bin/ssh -oBatchMode=yes", argv[i+1])
	assert.Equal(t, "store1:incoming/", argv[len(argv)-1])
	assert.Equal(t, "/data/run1", argv[len(argv)-2])
}

func TestBuildCopy_FromRemoteWithRsyncPathAndExtraFlags(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{
		Executable:    "rsync",
		SSHExecutable: "ssh",
		ExtraFlags:    []string{"--bwlimit=1000", "--chmod=ug+rw"},
	})

	argv, err := b.BuildCopy(model.CopyRequest{
		SourcePath:     "data/run1",
		SourceHost:     "src1",
		DestinationDir: "/archive",
		Content:        true,
	}, "/opt/bin/rsync")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"rsync", "--archive", "--delete", "--inplace", "--whole-file",
		"--rsh", "ssh -oBatchMode=yes",
		"--rsync-path", "/opt/bin/rsync",
		"--bwlimit=1000", "--chmod=ug+rw",
		"src1:data/run1/", "/archive/",
	}, argv)
}

func TestBuildCopy_RemoteWithoutSSHOmitsRsh(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync"})

	argv, err := b.BuildCopy(model.CopyRequest{SourcePath: "/a", DestinationDir: "b", DestinationHost: "store1"}, "/opt/rsync")
	require.NoError(t, err)
	assert.Equal(t, -1, indexOf(argv, "--rsh"))
	assert.Equal(t, -1, indexOf(argv, "--rsync-path"))
}

func TestBuildCopy_LocalNeverUsesRsh(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", SSHExecutable: "ssh"})
	argv, err := b.BuildCopy(model.CopyRequest{SourcePath: "/a", DestinationDir: "/b"}, "/opt/rsync")
	require.NoError(t, err)
	assert.Equal(t, -1, indexOf(argv, "--rsh"))
}

func TestBuildCopy_BothHostsRejected(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", SSHExecutable: "ssh"})

	_, err := b.BuildCopy(model.CopyRequest{
		SourcePath:      "a",
		SourceHost:      "src1",
		DestinationDir:  "b",
		DestinationHost: "store1",
	}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrBothRemote))
}

func TestBuildCopy_InvalidRequests(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync"})

	_, err := b.BuildCopy(model.CopyRequest{DestinationDir: "/b"}, "")
	assert.True(t, errors.Is(err, errclass.ErrConfigInvalid))

	_, err = b.BuildCopy(model.CopyRequest{SourcePath: "/a", DestinationDir: "b", DestinationHost: "bad host"}, "")
	assert.True(t, errors.Is(err, errclass.ErrHostInvalid))
}

func TestBuildCopy_CustomStandardFlags(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", StandardFlags: []string{"-a"}})
	argv, err := b.BuildCopy(model.CopyRequest{SourcePath: "/a", DestinationDir: "/b"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"rsync", "-a", "/a", "/b/"}, argv)
}

func TestBuildCopy_WindowsTranslatesLocalPathsAndSSH(t *testing.T) {
	b := command.NewBuilder(model.ToolInvocation{
		Executable:    `C:\cygwin\bin\rsync.exe`,
		SSHExecutable: `C:\cygwin\bin\ssh.exe`,
	}, pathutil.ForPlatform("windows"))

	argv, err := b.BuildCopy(model.CopyRequest{
		SourcePath:      `C:\data\run1`,
		DestinationDir:  "incoming",
		DestinationHost: "store1",
	}, "")
	require.NoError(t, err)
	assert.Contains(t, argv, "/cygdrive/c/cygwin/bin/ssh.exe -oBatchMode=yes")
	assert.Equal(t, "/cygdrive/c/data/run1", argv[len(argv)-2])
	assert.Equal(t, "store1:incoming/", argv[len(argv)-1])
}

func TestBuildCopy_ToDaemonModule(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{
		Executable:      "rsync",
		SSHExecutable:   "ssh",
		RemoteRsyncPath: "/opt/bin/rsync",
		PasswordFile:    "/etc/rcopy/rsync.secret",
	})

	argv, err := b.BuildCopy(model.CopyRequest{
		SourcePath:      "/data/run1",
		DestinationDir:  "nightly",
		DestinationHost: "store1",
		Module:          "incoming",
	}, "/opt/bin/rsync")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"rsync", "--archive", "--delete", "--inplace", "--whole-file",
		"--password-file=/etc/rcopy/rsync.secret",
		"/data/run1", "store1::incoming/nightly/",
	}, argv)
}

func TestBuildCopy_FromDaemonModuleWithoutPasswordFile(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", SSHExecutable: "ssh"})

	argv, err := b.BuildCopy(model.CopyRequest{
		SourcePath:     "run1",
		SourceHost:     "src1",
		DestinationDir: "/archive",
		Module:         "exports",
		Content:        true,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, -1, indexOf(argv, "--rsh"))
	assert.Equal(t, "src1::exports/run1/", argv[len(argv)-2])
	assert.Equal(t, "/archive/", argv[len(argv)-1])
	for _, a := range argv {
		assert.False(t, strings.HasPrefix(a, "--password-file"), a)
	}
}

func TestBuildCopy_ModuleRequirements(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync"})

	_, err := b.BuildCopy(model.CopyRequest{SourcePath: "/a", DestinationDir: "/b", Module: "incoming"}, "")
	assert.True(t, errors.Is(err, errclass.ErrHostRequired))

	for _, module := range []string{"in/coming", "in:coming", "in coming"} {
		_, err = b.BuildCopy(model.CopyRequest{SourcePath: "/a", DestinationDir: "b", DestinationHost: "store1", Module: module}, "")
		assert.True(t, errors.Is(err, errclass.ErrConfigInvalid), module)
	}
}

func TestBuildProbe(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", SSHExecutable: "ssh", ExtraFlags: []string{"--bwlimit=10"}})

	argv, err := b.BuildProbe("incoming", "store1")
	require.NoError(t, err)
	assert.Equal(t, []string{"rsync", "--rsh", "ssh -oBatchMode=yes", "store1:incoming/"}, argv)
}

func TestBuildProbe_Requirements(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", SSHExecutable: "ssh"})
	_, err := b.BuildProbe("incoming", "")
	assert.True(t, errors.Is(err, errclass.ErrHostRequired))

	noSSH := unixBuilder(model.ToolInvocation{Executable: "rsync"})
	_, err = noSSH.BuildProbe("incoming", "store1")
	assert.True(t, errors.Is(err, errclass.ErrSSHRequired))
}

func TestBuildImmutableCopy(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync"})
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	argv, err := b.BuildImmutableCopy(src, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{"rsync", "--archive", "--link-dest=" + src, src + "/", dst}, argv)

	_, err = b.BuildImmutableCopy("", dst)
	assert.True(t, errors.Is(err, errclass.ErrConfigInvalid))
}

func TestSSHArgv(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", SSHExecutable: `/usr/bin/ssh -p 2222 -i "/keys/id ed25519"`})
	argv, err := b.SSHArgv()
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/ssh", "-p", "2222", "-i", "/keys/id ed25519", "-oBatchMode=yes"}, argv)

	_, err = unixBuilder(model.ToolInvocation{Executable: "rsync"}).SSHArgv()
	assert.True(t, errors.Is(err, errclass.ErrSSHRequired))
}

func TestBuildRemoteRemove(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", SSHExecutable: "ssh"})

	argv, err := b.BuildRemoteRemove("store1", "incoming", "it's here")
	require.NoError(t, err)
	assert.Equal(t, []string{"ssh", "-oBatchMode=yes", "-T", "store1", `rm -rf -- 'incoming/it'\''s here'`}, argv)

	argv, err = b.BuildRemoteRemove("store1", "/srv/incoming/", "run1")
	require.NoError(t, err)
	assert.Equal(t, "rm -rf -- '/srv/incoming/run1'", argv[len(argv)-1])
}

func TestBuildRemoteRemove_RejectsNonChildTargets(t *testing.T) {
	b := unixBuilder(model.ToolInvocation{Executable: "rsync", SSHExecutable: "ssh"})

	for _, tc := range []struct{ dir, name string }{
		{"incoming", ""},
		{"incoming", "."},
		{"incoming", ".."},
		{"incoming", "a/b"},
		{"incoming", "/"},
		{"", "run1"},
	} {
		_, err := b.BuildRemoteRemove("store1", tc.dir, tc.name)
		assert.True(t, errors.Is(err, errclass.ErrConfigInvalid), "dir=%q name=%q", tc.dir, tc.name)
	}
}

func TestEntryName(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"run1", "run1"},
		{"/data/run1", "run1"},
		{"data/run1.tar", "run1.tar"},
		{"data/run1/", ""},
		{"data/run1/.", ""},
		{".", ""},
		{"..", ""},
		{"data/..", ""},
		{"/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, command.EntryName(tt.source), tt.source)
	}
}

func indexOf(argv []string, s string) int {
	for i, a := range argv {
		if a == s {
			return i
		}
	}
	return -1
}
