package main

// A lossy UDP gateway for exercising the retransmission engine: run the
// echo server behind it, point the echo client at the gateway, and watch
// the protocol recover from drops and duplicates.

import (
	"flag"
	"log"
	"math/rand"
	"net"
)

var (
	gatewayPort int
	targetAddr  string
	dropRate    float64
	dupRate     float64
	seed        int64
)

func init() {
	flag.IntVar(&gatewayPort, "port", 8902, "Gateway port number")
	flag.StringVar(&targetAddr, "target", "127.0.0.1:8901", "Target server address")
	flag.Float64Var(&dropRate, "droprate", 0.1, "Datagram drop rate (0.0-1.0)")
	flag.Float64Var(&dupRate, "duprate", 0.0, "Datagram duplication rate (0.0-1.0)")
	flag.Int64Var(&seed, "seed", 1, "Random seed")
	flag.Parse()
}

func main() {
	target, err := net.ResolveUDPAddr("udp4", targetAddr)
	if err != nil {
		log.Fatalln("Error resolving target address:", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: gatewayPort})
	if err != nil {
		log.Fatalln("Error listening:", err)
	}
	defer conn.Close()
	log.Printf("Drop gateway listening on port %d, forwarding to %s (drop %.2f, dup %.2f)\n", gatewayPort, targetAddr, dropRate, dupRate)

	rng := rand.New(rand.NewSource(seed))
	buf := make([]byte, 65535)

	// The protocol is single-peer, so the gateway tracks one client: the
	// most recent non-target sender.
	var client *net.UDPAddr

	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.Fatalln("Error reading:", err)
		}

		var dst *net.UDPAddr
		var direction string
		if from.IP.Equal(target.IP) && from.Port == target.Port {
			if client == nil {
				log.Println("Dropping server datagram: no client known yet")
				continue
			}
			dst, direction = client, "server->client"
		} else {
			client = from
			dst, direction = target, "client->server"
		}

		if rng.Float64() < dropRate {
			log.Printf("Dropped datagram in %s direction (size: %d)\n", direction, n)
			continue
		}

		if _, err := conn.WriteToUDP(buf[:n], dst); err != nil {
			log.Println("Error forwarding:", err)
			continue
		}
		if rng.Float64() < dupRate {
			log.Printf("Duplicating datagram in %s direction (size: %d)\n", direction, n)
			if _, err := conn.WriteToUDP(buf[:n], dst); err != nil {
				log.Println("Error forwarding duplicate:", err)
			}
		}
	}
}
