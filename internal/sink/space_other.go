//go:build !unix

package sink

import "errors"

var errUnsupported = errors.New("sink: free space unknown on this platform")

func freeSpace(string) (uint64, error) { return 0, errUnsupported }
