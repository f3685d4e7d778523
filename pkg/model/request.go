package model

// CopyRequest describes one copy. At most one of SourceHost and
// DestinationHost may be set; rsync addresses a single remote peer per call.
type CopyRequest struct {
	SourcePath      string `json:"source_path"`
	SourceHost      string `json:"source_host,omitempty"`
	DestinationDir  string `json:"destination_dir"`
	DestinationHost string `json:"destination_host,omitempty"`

	// Content copies the entries inside SourcePath instead of SourcePath itself.
	Content bool `json:"content,omitempty"`

	// Module names an rsync daemon module on the remote host. The remote
	// path is then relative to the module and no remote shell is used.
	Module string `json:"module,omitempty"`
}

// IsRemote reports whether either side of the copy lives on another host.
func (r CopyRequest) IsRemote() bool {
	return r.SourceHost != "" || r.DestinationHost != ""
}

// RemoteHost returns the single remote peer, or "" for a local copy.
func (r CopyRequest) RemoteHost() string {
	if r.SourceHost != "" {
		return r.SourceHost
	}
	return r.DestinationHost
}

// ToolInvocation is the configuration-time description of how rsync is run.
// It is shared read-only by all operations of a copier.
type ToolInvocation struct {
	Executable    string   `json:"executable"`
	SSHExecutable string   `json:"ssh_executable,omitempty"`
	StandardFlags []string `json:"standard_flags"`
	ExtraFlags    []string `json:"extra_flags,omitempty"`

	// DeleteBeforeOverwrite removes an existing same-named destination entry
	// before copying, for filesystems that reject overwrite-in-place.
	DeleteBeforeOverwrite bool `json:"delete_before_overwrite"`

	// RemoteRsyncPath is passed as --rsync-path when nothing more specific
	// is known about the remote host.
	RemoteRsyncPath string `json:"remote_rsync_path,omitempty"`

	// PasswordFile is passed as --password-file to authenticate against an
	// rsync daemon module.
	PasswordFile string `json:"password_file,omitempty"`
}

// DefaultStandardFlags are passed to every mutable copy.
var DefaultStandardFlags = []string{"--archive", "--delete", "--inplace", "--whole-file"}
