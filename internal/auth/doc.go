// Package auth owns the ordered authorization levels and the on-disk
// accounts file the daemon validates client credentials against.
package auth
