// Package txn provides the transaction manager handle that query execution
// shares with the compilation manager.
package txn
