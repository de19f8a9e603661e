//go:build debug

package debug

import "fmt"

const Enabled = true

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
