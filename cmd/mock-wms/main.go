// Command mock-wms serves a small in-memory WMS API for local pipeline
// runs: seeded inbound receipts and outbound orders, incremental list
// endpoints, and a tick endpoint that mutates records over time.
package main

import (
	"flag"
	"log"
	"net/http"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	seed := flag.Int64("seed", 7, "seed for the generated dataset")
	flag.Parse()

	srv := newServer(*seed)
	log.Printf("mock WMS API listening on %s (ib=%d ob=%d)", *addr, len(srv.ib), len(srv.ob))
	if err := http.ListenAndServe(*addr, srv.handler()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
