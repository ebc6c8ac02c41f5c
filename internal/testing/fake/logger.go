package fake

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// WaitLog is a helper to wait for a log message to be printed. It returns the
// logger to inject in the component, and a function that blocks until the
// message is found or the timeout is reached.
func WaitLog(msg string, timeout time.Duration) (zerolog.Logger, func(t *testing.T)) {
	reader, writer := io.Pipe()
	done := make(chan struct{})

	var lock sync.Mutex
	found := false
	buffer := new(bytes.Buffer)

	go func() {
		select {
		case <-done:
		case <-time.After(timeout):
			writer.Close()
		}
	}()

	go func() {
		defer close(done)

		data := make([]byte, 1024)

		for {
			n, err := reader.Read(data)
			if err != nil {
				return
			}

			lock.Lock()
			buffer.Write(data[:n])
			found = strings.Contains(buffer.String(), fmt.Sprintf(`"%s"`, msg))
			lock.Unlock()

			if found {
				// Keep draining so that the logger never blocks.
				go io.Copy(io.Discard, reader)
				return
			}
		}
	}()

	wait := func(t *testing.T) {
		<-done

		lock.Lock()
		defer lock.Unlock()

		if !found {
			t.Fatalf("log not found in %s", buffer.String())
		}
	}

	return zerolog.New(writer), wait
}
