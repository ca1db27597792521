package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/jseo8155/Reliable-Data-Transfer-Networking/config"
	"github.com/jseo8155/Reliable-Data-Transfer-Networking/lib"
)

func main() {
	port := flag.Int("port", 8901, "Port to listen on")
	configFile := flag.String("config", "config.yaml", "Configuration file")
	flag.Parse()

	var err error
	config.AppConfig, err = config.ReadConfig(*configFile)
	if err != nil {
		log.Println("Configuration file error:", err, "- using defaults")
		config.AppConfig = config.DefaultConfig()
	}

	connConfig := &lib.ConnectionConfig{
		InitialEstimatedRTT: config.AppConfig.InitialEstimatedRTT(),
		InitialDevRTT:       config.AppConfig.InitialDevRTT(),
		MinRTO:              config.AppConfig.MinRTO(),
		TimeWait:            config.AppConfig.TimeWait(),
		PayloadPoolSize:     config.AppConfig.PayloadPoolSize,
		PoolDebug:           config.AppConfig.PoolDebug,
	}

	log.Printf("Echo server waiting for a connection on port %d\n", *port)
	conn, err := lib.Accept(*port, connConfig)
	if err != nil {
		log.Fatalln("Error accepting connection:", err)
	}

	received := 0
	for {
		data, err := conn.ReceiveData()
		if err != nil {
			log.Fatalln("Error receiving data:", err)
		}
		if data == nil {
			// Peer initiated teardown.
			fmt.Println("Peer closed the connection")
			break
		}
		received++
		log.Printf("Received %d bytes (message %d), echoing back\n", len(data), received)

		if err := conn.SendData(data); err != nil {
			log.Fatalln("Error echoing data:", err)
		}
	}

	if err := conn.Close(); err != nil {
		log.Fatalln("Error closing connection:", err)
	}
	fmt.Printf("Echo server done after %d messages. Estimated RTT: %v\n", received, conn.EstimatedRTT())
}
