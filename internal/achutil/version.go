package achutil

// Version is the release string reported by --version on both daemons.
// Bumped by hand; there's no build-stamping step in this tree.
const Version = "1.1.0"
