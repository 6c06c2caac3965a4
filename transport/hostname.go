package transport

import (
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// canonicalHostname returns the machine's canonical DNS name: the CNAME
// target of os.Hostname(), or the raw hostname if it has none. Bind uses
// this to rewrite a "*" host in a tcp:// URL into something a remote peer
// can actually dial back to.
func canonicalHostname() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", err
	}
	cname, err := net.LookupCNAME(host)
	if err != nil || cname == "" {
		return host, nil
	}
	return strings.TrimSuffix(cname, "."), nil
}

var ephemeralNameRun = regexp.MustCompile(`X+$`)

// substituteEphemeralName replaces a trailing run of X characters in path
// (the convention inproc://name-XXXXX and ipc://name-XXXXX use to request
// a generated unique name) with alphanumerics derived from a fresh UUID,
// padded or truncated to the same length as the run it replaces. A path
// with no trailing X run is returned unchanged.
func substituteEphemeralName(path string) string {
	loc := ephemeralNameRun.FindStringIndex(path)
	if loc == nil {
		return path
	}
	runLen := loc[1] - loc[0]
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	for len(id) < runLen {
		id += id
	}
	return path[:loc[0]] + id[:runLen]
}
