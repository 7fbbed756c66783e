// Command testupstream runs a standalone fake authenticating front-end for
// manual testing. It stands where the real web server (Negotiate, client
// certificate, basic auth) would, proxying every request to the target with
// the trusted identity headers set.
// Usage: go run ./cmd/testupstream -user DOMAIN\\jdoe -groups eng,staff
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
)

func main() {
	port := flag.Int("port", 9081, "Port to listen on")
	target := flag.String("target", "http://localhost:9080", "Caddy instance to proxy to")
	user := flag.String("user", "", "Principal to assert (empty = anonymous)")
	email := flag.String("email", "", "Email to assert")
	groups := flag.String("groups", "", "Comma-separated external groups to assert")
	userHeader := flag.String("user-header", "Remote-User", "Identity header name")
	emailHeader := flag.String("email-header", "Remote-Email", "Email header name")
	countHeader := flag.String("count-header", "Remote-Groups-Count", "Group count header name")
	groupPrefix := flag.String("group-prefix", "Remote-Group-", "Indexed group header prefix")
	flag.Parse()

	targetURL, err := url.Parse(*target)
	if err != nil {
		log.Fatalf("Failed to parse target URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	baseDirector := proxy.Director
	proxy.Director = func(r *http.Request) {
		baseDirector(r)

		// Never forward client-supplied identity headers.
		r.Header.Del(*userHeader)
		r.Header.Del(*emailHeader)
		r.Header.Del(*countHeader)

		if *user != "" {
			r.Header.Set(*userHeader, *user)
		}
		if *email != "" {
			r.Header.Set(*emailHeader, *email)
		}
		if *groups != "" {
			names := strings.Split(*groups, ",")
			r.Header.Set(*countHeader, strconv.Itoa(len(names)))
			for i, g := range names {
				r.Header.Set(*groupPrefix+strconv.Itoa(i+1), strings.TrimSpace(g))
			}
		}
	}

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Test upstream listening on %s, proxying to %s as user %q", addr, *target, *user)
	log.Fatal(http.ListenAndServe(addr, proxy))
}
