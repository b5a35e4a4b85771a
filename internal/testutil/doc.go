// Package testutil contains helpers used across tests to drive controllers
// deterministically: a stepping clock, a channel whose states follow a
// time script, and a fluent schema builder. They are not intended for
// production usage.
package testutil
