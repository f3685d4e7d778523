package pathutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jvs-project/rcopy/pkg/errclass"
)

// ValidateHost checks that host can be used as the host part of an rsync
// address. Bracketed IPv6 literals and user@host forms are accepted.
func ValidateHost(host string) error {
	if host == "" {
		return errclass.ErrHostInvalid.WithMessage("host must not be empty")
	}

	host = norm.NFC.String(host)

	for _, r := range host {
		if unicode.IsControl(r) {
			return errclass.ErrHostInvalid.WithMessagef("host must not contain control characters: %q", host)
		}
		if unicode.IsSpace(r) {
			return errclass.ErrHostInvalid.WithMessagef("host must not contain whitespace: %q", host)
		}
	}

	if strings.ContainsAny(host, `/\`) {
		return errclass.ErrHostInvalid.WithMessagef("host must not contain separators: %s", host)
	}

	name := host
	if at := strings.LastIndexByte(name, '@'); at >= 0 {
		if at == 0 || at == len(name)-1 {
			return errclass.ErrHostInvalid.WithMessagef("malformed user@host: %s", host)
		}
		name = name[at+1:]
	}
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		return nil
	}
	if strings.Contains(name, ":") {
		return errclass.ErrHostInvalid.WithMessagef("host must not contain ':': %s", host)
	}
	return nil
}
