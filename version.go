package parley

// Version is the release reported by the CLI and the servers.
const Version = "0.4.0"
