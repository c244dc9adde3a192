package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
)

const escape = "\x1b"

// watchStop turns a "q" or ESC line on r, or any signal on sig, into a
// stop request. Requests are coalesced while one is pending.
func watchStop(ctx context.Context, r io.Reader, sig <-chan os.Signal) <-chan struct{} {
	stop := make(chan struct{}, 1)
	request := func() {
		select {
		case stop <- struct{}{}:
		default:
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				request()
			case line, ok := <-lines:
				if !ok {
					lines = nil
					continue
				}
				if isStopLine(line) {
					request()
				}
			}
		}
	}()
	return stop
}

func isStopLine(line string) bool {
	line = strings.TrimSpace(line)
	return strings.EqualFold(line, "q") || strings.HasPrefix(line, escape)
}
