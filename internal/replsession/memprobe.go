package replsession

// memRSSBytes returns the process's resident set size in bytes, using
// whatever probe the current platform file provides, or 0 on platforms
// without one.
//
// Implementations live in memprobe_linux.go, memprobe_darwin.go, and
// memprobe_other.go (build-tag separated, same split QuantumFlow's
// lockfile package uses for unix/windows).
