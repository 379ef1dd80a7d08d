// Command docflow runs the document workflow daemon and talks to it over the
// HTTP API: submit transactions, inspect status and history, cancel pending
// work, and manage configuration and the journal.
package main
