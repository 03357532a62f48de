package omnillm

// Version is set at build time via ldflags.
var Version = "current"
