// Package preflight runs environment checks before the daemon starts and for
// `docflow status`: data and log directory access, plus reachability of every
// configured handler endpoint and the ntfy topic.
package preflight
