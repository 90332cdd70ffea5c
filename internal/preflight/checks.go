package preflight

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const dialTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDirectoryReadable verifies that the directory exists and can be listed.
func CheckDirectoryReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

// CheckProcessedDirectory verifies the relocation target. A missing directory
// passes because the consumer creates it on first use.
func CheckProcessedDirectory(name, path string) Result {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first use)", path)}
	}
	return CheckDirectoryAccess(name, path)
}

// CheckEndpoint verifies that a TCP connection to the host in endpoint can be
// opened. endpoint may be a URL (amqp://, nats://, https://) or host:port.
func CheckEndpoint(ctx context.Context, name, endpoint, defaultPort string) Result {
	address, err := dialAddress(endpoint, defaultPort)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", address, err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", address)}
}

func dialAddress(endpoint, defaultPort string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("missing endpoint")
	}
	// Cluster lists ("nats://a:4222,nats://b:4222") are checked by first member.
	first, _, _ := strings.Cut(endpoint, ",")
	first = strings.TrimSpace(first)
	host := first
	if strings.Contains(first, "://") {
		parsed, err := url.Parse(first)
		if err != nil {
			return "", fmt.Errorf("invalid endpoint %q: %v", endpoint, err)
		}
		host = parsed.Host
		if parsed.Port() == "" {
			switch parsed.Scheme {
			case "https":
				defaultPort = "443"
			case "http":
				defaultPort = "80"
			}
		}
	}
	if host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, defaultPort)
	}
	return host, nil
}
