package version

// Version is overridden at build time with -ldflags "-X trojascan/version.Version=...".
var Version = "0.0.0"
