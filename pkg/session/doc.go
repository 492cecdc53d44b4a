/*
Package session implements the session store lifecycle and its locking
strategies.

A Store serves exactly one open/read/write/close cycle on a dedicated
connection. Provider hands out a fresh Store per cycle and wraps the common
read-modify-write pattern in Run.
*/
package session
