package device

import (
	"encoding/base64"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

// machineIDPaths are checked in order for a stable per-install identifier.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// Host fingerprints the local process environment.
//
// Signals, in order: user agent, language tag, color depth, terminal
// geometry, timezone offset, logical core count, touch points and a host
// signature.
type Host struct {
	// Version goes into the user agent.
	Version string
	// Terminal is the file descriptor probed for geometry, usually stdout.
	Terminal *os.File

	getenv   func(string) string
	hostname func() (string, error)
	readFile func(string) ([]byte, error)
	now      func() time.Time
}

// NewHost fingerprints the current process, probing stdout for geometry.
func NewHost(version string) *Host {
	return &Host{Version: version, Terminal: os.Stdout}
}

// Signals implements Environment.
func (h *Host) Signals() ([]string, error) {
	return []string{
		h.UserAgent(),
		h.language(),
		strconv.Itoa(h.colorDepth()),
		h.geometry(),
		strconv.Itoa(timezoneOffset(h.clock())),
		coreCount(),
		"0", // no touch input on a terminal
		h.hostSignature(),
	}, nil
}

// UserAgent is also sent on every API request.
func (h *Host) UserAgent() string {
	v := h.Version
	if v == "" {
		v = "dev"
	}
	return fmt.Sprintf("storefront/%s (%s; %s)", v, runtime.GOOS, runtime.GOARCH)
}

func (h *Host) env(key string) string {
	if h.getenv != nil {
		return h.getenv(key)
	}
	return os.Getenv(key)
}

func (h *Host) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// language reads the POSIX locale and renders it as a BCP 47 tag:
// "en_IN.UTF-8" becomes "en-IN".
func (h *Host) language() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := h.env(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return "en-US"
}

func (h *Host) colorDepth() int {
	switch strings.ToLower(h.env("COLORTERM")) {
	case "truecolor", "24bit":
		return 24
	}
	t := h.env("TERM")
	switch {
	case t == "" || t == "dumb":
		return 0
	case strings.Contains(t, "256color"):
		return 8
	default:
		return 4
	}
}

func (h *Host) geometry() string {
	if h.Terminal == nil {
		return "0x0"
	}
	fd := int(h.Terminal.Fd())
	if !term.IsTerminal(fd) {
		return "0x0"
	}
	w, ht, err := term.GetSize(fd)
	if err != nil {
		return "0x0"
	}
	return fmt.Sprintf("%dx%d", w, ht)
}

// hostSignature is the stand-in for a rendering checksum: hostname plus
// machine id, base64 encoded. Any failure yields an empty signal.
func (h *Host) hostSignature() string {
	hostname := os.Hostname
	if h.hostname != nil {
		hostname = h.hostname
	}
	readFile := os.ReadFile
	if h.readFile != nil {
		readFile = h.readFile
	}

	name, err := hostname()
	if err != nil {
		name = ""
	}
	var machineID string
	for _, path := range machineIDPaths {
		if data, err := readFile(path); err == nil {
			machineID = strings.TrimSpace(string(data))
			break
		}
	}
	if name == "" && machineID == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(name + "\n" + machineID))
}

// timezoneOffset returns minutes west of UTC, so UTC+05:30 is -330.
func timezoneOffset(t time.Time) int {
	_, offset := t.Zone()
	return -offset / 60
}

func coreCount() string {
	if n := runtime.NumCPU(); n > 0 {
		return strconv.Itoa(n)
	}
	return "unknown"
}

var _ Environment = (*Host)(nil)
