// Package pathutil converts local paths into the syntax rsync expects and
// builds the [host:]path addresses passed on its command line.
package pathutil

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jvs-project/rcopy/pkg/model"
)

const cygdrivePrefix = "/cygdrive/"

// Translator rewrites paths for the platform family rsync runs on.
// On Windows rsync comes from Cygwin and wants /cygdrive/<letter> paths.
type Translator struct {
	family string
}

// NewTranslator returns a Translator for the running platform.
func NewTranslator() Translator {
	return ForPlatform(runtime.GOOS)
}

// ForPlatform returns a Translator for the given GOOS value.
func ForPlatform(goos string) Translator {
	if goos == "windows" {
		return Translator{family: model.PlatformWindows}
	}
	return Translator{family: model.PlatformUnix}
}

// Family returns the platform family the translator was built for.
func (t Translator) Family() string {
	return t.family
}

func (t Translator) windows() bool {
	return t.family == model.PlatformWindows
}

// ToToolPath translates path for rsync. Directory paths get a trailing
// separator, which makes rsync copy into rather than as the directory.
func (t Translator) ToToolPath(path string, isDir bool) string {
	p := path
	if t.windows() {
		p = strings.ReplaceAll(p, `\`, "/")
		if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
			p = cygdrivePrefix + strings.ToLower(p[:1]) + p[2:]
		}
	}
	if isDir && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// AddressOf builds the rsync address of path. Without a host the local path
// is made absolute; with a host the caller's path is used as given, since
// absoluteness only means something on the host that owns the filesystem.
func (t Translator) AddressOf(host, path string, isDir bool) string {
	if host == "" {
		return t.ToToolPath(t.absolute(path), isDir)
	}
	return host + ":" + t.ToToolPath(path, isDir)
}

// ModuleAddressOf builds the rsync daemon address host::module/path. An
// empty path addresses the module root.
func (t Translator) ModuleAddressOf(host, module, path string, isDir bool) string {
	addr := host + "::" + module
	if path != "" {
		addr += "/" + strings.TrimPrefix(strings.ReplaceAll(path, `\`, "/"), "/")
	}
	if isDir && !strings.HasSuffix(addr, "/") {
		addr += "/"
	}
	return addr
}

func (t Translator) absolute(path string) string {
	if t.isAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func (t Translator) isAbs(path string) bool {
	if t.windows() {
		if len(path) >= 2 && path[1] == ':' && isDriveLetter(path[0]) {
			return true
		}
		return strings.HasPrefix(path, `\`) || strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, "/")
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
