// Command httpss-dial is a smoke-test CLI: it issues one GET through a
// synthetic httpss-family URL and prints the response status and headers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	httpsschain "github.com/tunnelstack/httpss"
)

func main() {
	url := flag.String("url", "", "synthetic httpss/httpsss/httpssss URL, e.g. httpsss://proxy1:443/proxy2:443/origin.example/path")
	timeout := flag.Duration("timeout", 15*time.Second, "overall request timeout")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: httpss-dial -url httpsss://proxy1:443/proxy2:443/origin.example/path")
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync()

	client := httpsschain.NewClient(httpsschain.Options{
		DialTimeout:      5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		Logger:           logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad URL: %v\n", err)
		os.Exit(1)
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("%s\n", resp.Status)
	for name, values := range resp.Header {
		for _, v := range values {
			fmt.Printf("%s: %s\n", name, v)
		}
	}
	fmt.Println()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading body failed: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(body)
}
