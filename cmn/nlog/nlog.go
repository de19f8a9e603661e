// Package nlog provides node-local logging: a package-level logger writing
// to stderr (or a rotating file when configured), with a verbosity-gated
// Infoln/Errorln/Warningln surface matching the rest of the node.
/*
 * Copyright (c) 2024, zexec authors.
 */
package nlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	logger           = log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds)
)

// SetOutput redirects all subsequent log lines; used by cmd/zexecnode to
// point at the configured log file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	logger = log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

func Infoln(args ...any)              { output("I", fmt.Sprintln(args...)) }
func Infof(format string, a ...any)   { output("I", fmt.Sprintf(format, a...)) }
func Warningln(args ...any)           { output("W", fmt.Sprintln(args...)) }
func Warningf(format string, a ...any) { output("W", fmt.Sprintf(format, a...)) }
func Errorln(args ...any)             { output("E", fmt.Sprintln(args...)) }
func Errorf(format string, a ...any)  { output("E", fmt.Sprintf(format, a...)) }

func output(level, msg string) {
	mu.Lock()
	defer mu.Unlock()
	logger.Printf("%s %s", level, msg)
}
