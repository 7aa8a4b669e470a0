package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// Tiny liveness probe for container health checks and CI. Exits 0 when
// /healthz answers 200 within the deadline, 1 otherwise.
func main() {
	url := flag.String("url", "http://127.0.0.1:8080/healthz", "health endpoint to probe")
	timeout := flag.Duration("timeout", 2*time.Second, "per-request timeout")
	retries := flag.Int("retries", 1, "number of attempts before giving up")
	flag.Parse()

	c := &fasthttp.Client{
		Name:         "parley-healthcheck",
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(*url)
	req.Header.SetMethod(fasthttp.MethodGet)

	var lastErr error
	for i := 0; i < *retries; i++ {
		if i > 0 {
			time.Sleep(time.Second)
		}
		lastErr = c.DoTimeout(req, resp, *timeout)
		if lastErr == nil && resp.StatusCode() == fasthttp.StatusOK {
			fmt.Printf("ok: %s\n", resp.Body())
			os.Exit(0)
		}
	}
	if lastErr != nil {
		fmt.Fprintf(os.Stderr, "health probe failed: %v\n", lastErr)
	} else {
		fmt.Fprintf(os.Stderr, "health probe failed: status %d\n", resp.StatusCode())
	}
	os.Exit(1)
}
