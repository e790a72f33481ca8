package version

// Version is set at build time with -ldflags "-X".
var Version = "v0.1.0-dev"
