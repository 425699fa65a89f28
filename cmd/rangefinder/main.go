// Command rangefinder samples an HC-SR04 ultrasonic sensor with a
// cooperative polling loop and publishes averaged distance readings to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/sonar-sensor/internal/gpio"
	"github.com/sweeney/sonar-sensor/internal/mqtt"
	"github.com/sweeney/sonar-sensor/internal/sonar"
	"github.com/sweeney/sonar-sensor/internal/status"
	"github.com/sweeney/sonar-sensor/internal/web"
)

func main() {
	poll := flag.Duration("poll", 2*time.Millisecond, "Controller polling interval")
	inactivity := flag.Duration("inactivity", sonar.DefaultInactivity, "Delay between sampling bursts")
	samples := flag.Int("samples", sonar.DefaultSamples, "Echo pulses averaged per burst")
	maxEcho := flag.Duration("max-echo", sonar.DefaultMaxEcho, "Longest believable echo width")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	pinTrigger := flag.Int("pin-trigger", gpio.DefaultPinTrigger, "BCM pin number for the trigger line")
	pinEcho := flag.Int("pin-echo", gpio.DefaultPinEcho, "BCM pin number for the echo line")
	printDistance := flag.Bool("print-distance", false, "Run one sampling burst, print the distance, and exit")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	wsBroker := flag.String("ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)

	flag.Parse()

	ws := resolveWSBroker(*wsBroker, *broker)
	if err := run(*poll, *inactivity, *samples, *maxEcho, *broker, *heartbeat, *pinTrigger, *pinEcho, *printDistance, *httpAddr, ws); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(poll, inactivity time.Duration, samples int, maxEcho time.Duration, broker string, heartbeat time.Duration, pinTrigger, pinEcho int, printDistance bool, httpAddr, wsBroker string) error {
	// Initialize GPIO
	pulser, err := gpio.NewRealPulser(pinTrigger, pinEcho)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pulser.Close()

	// One-shot mode
	if printDistance {
		r, err := measureOnce(pulser, poll, inactivity, samples, maxEcho)
		if err != nil {
			return err
		}
		fmt.Println(formatDistance(r))
		return nil
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:       poll.Milliseconds(),
		InactivityMs: inactivity.Milliseconds(),
		Samples:      samples,
		MaxEchoMs:    maxEcho.Milliseconds(),
		HeartbeatMs:  heartbeat.Milliseconds(),
		Broker:       broker,
		HTTPPort:     httpAddr,
		WSBroker:     wsBroker,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	log.Printf("started: poll=%v inactivity=%v samples=%d max-echo=%v broker=%s heartbeat=%v",
		poll, inactivity, samples, maxEcho, broker, heartbeat)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(pulser, publisher, publisher, tracker, inactivity, samples, maxEcho, heartbeat, time.Now, ticker.C, sigCh)
}

func runLoop(pulser gpio.Pulser, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, inactivity time.Duration, samples int, maxEcho time.Duration, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	var pending []sonar.Reading
	controller := sonar.New(pulser).
		Inactivity(inactivity).
		Samples(samples).
		MaxEcho(maxEcho).
		OnSample(func(r sonar.Reading) {
			pending = append(pending, r)
		})
	controller.Start(now())

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			controller.Stop()
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			if err := controller.Poll(t); err != nil {
				log.Printf("sensor poll error: %v", err)
				// Keep polling; the burst machinery already counted the
				// failed measurement.
			}

			for _, r := range pending {
				if err := publisher.Publish(r); err != nil {
					log.Printf("publish error: %v", err)
				}
				if tracker != nil {
					tracker.Update(r, controller.CountsSnapshot())
				}
			}
			pending = pending[:0]

			if tracker != nil {
				tracker.SetSampling(controller.Sampling())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}

				if tracker.HeartbeatDue(t, heartbeat) {
					counts := controller.CountsSnapshot()
					log.Printf("heartbeat: bursts=%d no_reading=%d rejected=%d",
						counts.Bursts, counts.NoReading, counts.Rejected)

					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					hbEvent := mqtt.SystemEvent{
						Timestamp:  t,
						Event:      "HEARTBEAT",
						RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
					}
					if err := publisher.PublishSystem(hbEvent); err != nil {
						log.Printf("heartbeat publish error: %v", err)
					}
				}
			}
		}
	}
}

// measureOnce runs a single burst against real time and returns its Reading.
func measureOnce(pulser gpio.Pulser, poll, inactivity time.Duration, samples int, maxEcho time.Duration) (sonar.Reading, error) {
	var (
		result sonar.Reading
		got    bool
	)
	controller := sonar.New(pulser).
		Inactivity(inactivity).
		Samples(samples).
		MaxEcho(maxEcho).
		OnSample(func(r sonar.Reading) {
			result = r
			got = true
		})
	controller.Start(time.Now())

	deadline := time.Now().Add(5 * time.Second)
	for !got {
		if time.Now().After(deadline) {
			return sonar.Reading{}, fmt.Errorf("sensor produced no burst within 5s")
		}
		if err := controller.Poll(time.Now()); err != nil {
			log.Printf("sensor poll error: %v", err)
		}
		time.Sleep(poll)
	}
	return result, nil
}

func formatDistance(r sonar.Reading) string {
	if !r.Valid {
		return fmt.Sprintf("No reading (%d/%d echoes rejected)", r.Pulses-r.ValidSamples, r.Pulses)
	}
	return fmt.Sprintf("Distance: %.2f cm (%d/%d samples)", r.Distance, r.ValidSamples, r.Pulses)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
