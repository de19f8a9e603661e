// Package debug provides assertions that compile to no-ops unless built
// with the `debug` build tag -- see debug_on.go / debug_off.go.
/*
 * Copyright (c) 2024, zexec authors.
 */
package debug
