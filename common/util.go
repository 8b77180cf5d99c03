package common

import (
	"fmt"
	"net"
	"time"
)

// IsPortOpen tries to establish a TCP connection to the specified port on localhost.
func IsPortOpen(port int) bool {
	return IsPortOpenTimeout(port, time.Second)
}

func IsPortOpenTimeout(port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func IsPortOpenRetry(port int, period time.Duration, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if IsPortOpenTimeout(port, period) {
			return true
		}
		time.Sleep(period)
	}
	return false
}

// GetFreePort asks the kernel for a free open port that is ready to use.
func GetFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
