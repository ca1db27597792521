package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jseo8155/Reliable-Data-Transfer-Networking/config"
	"github.com/jseo8155/Reliable-Data-Transfer-Networking/lib"
)

func main() {
	serverHost := flag.String("serverHost", "127.0.0.1", "Server host name or IP address")
	serverPort := flag.Int("serverPort", 8901, "Server port")
	count := flag.Int("count", 10, "Number of messages to send")
	interval := flag.Duration("interval", 500*time.Millisecond, "Interval between messages (e.g., 500ms, 1s)")
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

	conn, err := lib.Dial(*serverHost, *serverPort, connConfig)
	if err != nil {
		log.Fatalln("Error connecting:", err)
	}
	fmt.Println("Echo client connected to server!")

	successCount := 0
	for i := 0; i < *count; i++ {
		message := []byte(fmt.Sprintf("Echo message %d at %s", i, time.Now().Format(time.RFC3339Nano)))

		if err := conn.SendData(message); err != nil {
			log.Fatalln("Error sending data:", err)
		}

		echoed, err := conn.ReceiveData()
		if err != nil {
			log.Fatalln("Error receiving echo:", err)
		}
		if !bytes.Equal(echoed, message) {
			log.Printf("Echo mismatch: sent %q, got %q\n", message, echoed)
		} else {
			successCount++
		}

		log.Printf("Message %d echoed. Estimated RTT: %v\n", i, conn.EstimatedRTT())
		time.Sleep(*interval)
	}

	if err := conn.Close(); err != nil {
		log.Fatalln("Error closing connection:", err)
	}
	fmt.Printf("Echo client done: %d/%d messages echoed correctly\n", successCount, *count)
}
