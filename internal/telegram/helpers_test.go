package telegram

import (
	"os"
	"time"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0644)
}
